// Package report holds the structured answer returned for one query and its
// deterministic Markdown rendering.
package report

import (
	"sort"
	"strings"
)

// Status describes how a section was produced.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmpty       Status = "empty"
	StatusUnavailable Status = "unavailable"
	StatusUnroutable  Status = "unroutable"
)

// Report is the final multi-section answer for one query.
// It carries no timestamps or identifiers so equal inputs render equal bytes.
type Report struct {
	Query     string     `json:"query"`
	Window    string     `json:"window,omitempty"`
	Sections  []Section  `json:"sections"`
	Synthesis *Synthesis `json:"synthesis,omitempty"`
}

// Section is one capability's contribution, or the unroutable notice.
type Section struct {
	Tag      string            `json:"tag"`
	Title    string            `json:"title"`
	Status   Status            `json:"status"`
	Body     string            `json:"body"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Synthesis summarizes the sections and holds the cross-section commentary slot.
type Synthesis struct {
	Title       string   `json:"title"`
	Answered    []string `json:"answered"`
	Unavailable []string `json:"unavailable,omitempty"`
	Summary     string   `json:"summary"`

	// Commentary is non-nil only when two or more sections succeeded.
	// An empty string means the slot exists but nothing was written into it.
	Commentary *string `json:"commentary,omitempty"`
}

// UnroutableTag labels the single section of an unroutable report.
const UnroutableTag = "unroutable"

// NewUnroutable builds the answer for a query no capability could take.
// detail is appended when non-empty (for example the rejected capability names).
func NewUnroutable(query string, vocabulary []string, detail string) Report {
	var body strings.Builder
	body.WriteString("This question could not be matched to any available capability")
	if len(vocabulary) > 0 {
		body.WriteString(" (")
		body.WriteString(strings.Join(vocabulary, ", "))
		body.WriteString(")")
	}
	body.WriteString(". Rephrase it, name a campaign, or request a capability explicitly.")
	if detail != "" {
		body.WriteString("\n\n")
		body.WriteString(detail)
	}
	return Report{
		Query: query,
		Sections: []Section{{
			Tag:    UnroutableTag,
			Title:  "Unroutable query",
			Status: StatusUnroutable,
			Body:   body.String(),
			Reason: "unroutable",
		}},
	}
}

// Unroutable reports whether this is the single-section unroutable answer.
func (r Report) Unroutable() bool {
	return len(r.Sections) == 1 && r.Sections[0].Status == StatusUnroutable
}

// Failures returns the sections whose capability could not answer.
func (r Report) Failures() []Section {
	var out []Section
	for _, s := range r.Sections {
		if s.Status == StatusUnavailable {
			out = append(out, s)
		}
	}
	return out
}

// Markdown renders the report.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Insight report\n\n")
	b.WriteString("> ")
	b.WriteString(oneLine(r.Query))
	b.WriteString("\n")
	if r.Window != "" {
		b.WriteString(">\n> window: `")
		b.WriteString(r.Window)
		b.WriteString("`\n")
	}

	for _, s := range r.Sections {
		b.WriteString("\n## ")
		b.WriteString(s.Title)
		b.WriteString("\n\n")
		if s.Status == StatusUnavailable {
			b.WriteString("**data unavailable: ")
			b.WriteString(s.Reason)
			b.WriteString("**\n")
			if s.Body != "" {
				b.WriteString("\n")
				b.WriteString(strings.TrimRight(s.Body, "\n"))
				b.WriteString("\n")
			}
		} else {
			b.WriteString(strings.TrimRight(s.Body, "\n"))
			b.WriteString("\n")
		}
		writeMetadata(&b, s.Metadata)
	}

	if r.Synthesis != nil {
		b.WriteString("\n## ")
		b.WriteString(r.Synthesis.Title)
		b.WriteString("\n\n")
		b.WriteString(r.Synthesis.Summary)
		b.WriteString("\n")
		if r.Synthesis.Commentary != nil && *r.Synthesis.Commentary != "" {
			b.WriteString("\n")
			b.WriteString(strings.TrimRight(*r.Synthesis.Commentary, "\n"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeMetadata(b *strings.Builder, md map[string]string) {
	if len(md) == 0 {
		return
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\n<sub>")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" · ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(oneLine(md[k]))
	}
	b.WriteString("</sub>\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
