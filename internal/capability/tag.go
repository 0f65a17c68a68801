// Package capability defines the closed capability vocabulary and the
// request/result contract shared by the router and every backend adapter.
package capability

import (
	"fmt"
	"strings"
)

// Tag identifies a kind of backend query the router can answer.
// The numeric order is the canonical section order of a report.
type Tag int

const (
	// Metrics answers questions about internal campaign performance.
	Metrics Tag = iota
	// Trends answers questions about social media trends and sentiment.
	Trends
	// Creative answers questions about campaign creatives (images).
	Creative

	numTags
)

var tagNames = [numTags]string{
	Metrics:  "metrics",
	Trends:   "trends",
	Creative: "creative",
}

// NumTags is the size of the vocabulary.
const NumTags = int(numTags)

// AllTags returns the vocabulary in enumeration order.
func AllTags() []Tag {
	tags := make([]Tag, 0, numTags)
	for t := Tag(0); t < numTags; t++ {
		tags = append(tags, t)
	}
	return tags
}

// Valid reports whether t is a member of the vocabulary.
func (t Tag) Valid() bool {
	return t >= 0 && t < numTags
}

func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tag(%d)", int(t))
	}
	return tagNames[t]
}

// ParseTag converts a tag name into a Tag. Unknown names wrap ErrUnknownCapability.
func ParseTag(s string) (Tag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	// accepted spellings from older configs
	if name == "creative-analysis" || name == "creative_analysis" {
		name = "creative"
	}
	for t, n := range tagNames {
		if n == name {
			return Tag(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCapability, s)
}

// ParseTags parses a list of names, stopping at the first unknown one.
func ParseTags(names []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		t, err := ParseTag(n)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCapability, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Distinct returns the unique tags of in, sorted in enumeration order.
func Distinct(in []Tag) []Tag {
	var seen [numTags]bool
	for _, t := range in {
		if t.Valid() {
			seen[t] = true
		}
	}
	out := make([]Tag, 0, len(in))
	for t := Tag(0); t < numTags; t++ {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}
