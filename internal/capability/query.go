package capability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Query is a free-form question plus optional explicit parameters.
// Queries are passed by value and never mutated after submission.
type Query struct {
	Text   string `json:"text"`
	Params Params `json:"params"`
}

// Params holds the explicit parameters a caller may attach to a query.
type Params struct {
	// CampaignID is 0 when unset.
	CampaignID int64 `json:"campaign_id,omitempty"`

	// Window bounds the data considered. A zero window means "backend default".
	Window Window `json:"window,omitempty"`

	// Segment filters by audience segment (e.g. gen_z, millennials, office_workers).
	Segment string `json:"segment,omitempty"`

	// Platform filters by ad platform (facebook, youtube, tiktok).
	Platform string `json:"platform,omitempty"`

	// Capabilities bypasses classification when non-empty.
	Capabilities []Tag `json:"capabilities,omitempty"`
}

// Window is a half-open date range [Since, Until).
type Window struct {
	Since time.Time `json:"since,omitempty"`
	Until time.Time `json:"until,omitempty"`
}

// IsZero reports whether neither bound is set.
func (w Window) IsZero() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// Days returns the window length in whole days, or 0 for an open window.
func (w Window) Days() int {
	if w.Since.IsZero() || w.Until.IsZero() {
		return 0
	}
	return int(w.Until.Sub(w.Since).Hours() / 24)
}

// Resolve fills in missing bounds: Until defaults to now, Since to Until minus days.
func (w Window) Resolve(now time.Time, days int) Window {
	out := w
	if out.Until.IsZero() {
		out.Until = truncateDay(now).AddDate(0, 0, 1)
	}
	if out.Since.IsZero() {
		out.Since = truncateDay(out.Until).AddDate(0, 0, -days)
	}
	return out
}

func (w Window) String() string {
	if w.IsZero() {
		return ""
	}
	since, until := "", ""
	if !w.Since.IsZero() {
		since = w.Since.Format(dateLayout)
	}
	if !w.Until.IsZero() {
		until = w.Until.Format(dateLayout)
	}
	return since + ".." + until
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var (
	campaignPattern = regexp.MustCompile(`(?i)(?:campaign|แคมเปญ)\s*(?:id\s*)?#?\s*(\d{1,12})`)
	identPattern    = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

// CampaignID returns the explicit campaign id, or one mentioned in the text
// ("campaign 12", "campaign #12", "แคมเปญ 12").
func (q Query) CampaignID() (int64, bool) {
	if q.Params.CampaignID > 0 {
		return q.Params.CampaignID, true
	}
	m := campaignPattern.FindStringSubmatch(q.Text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Mentions reports whether the lowercased text contains any of the terms.
func (q Query) Mentions(terms ...string) bool {
	text := strings.ToLower(q.Text)
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// Validate rejects parameters that cannot be passed to a backend safely.
func (p Params) Validate() error {
	if p.CampaignID < 0 {
		return fmt.Errorf("campaign_id must be positive, got %d", p.CampaignID)
	}
	if p.Segment != "" && !identPattern.MatchString(p.Segment) {
		return fmt.Errorf("invalid segment %q", p.Segment)
	}
	if p.Platform != "" && !identPattern.MatchString(p.Platform) {
		return fmt.Errorf("invalid platform %q", p.Platform)
	}
	if !p.Window.Since.IsZero() && !p.Window.Until.IsZero() && !p.Window.Since.Before(p.Window.Until) {
		return fmt.Errorf("window since (%s) must be before until (%s)",
			p.Window.Since.Format(dateLayout), p.Window.Until.Format(dateLayout))
	}
	for _, t := range p.Capabilities {
		if !t.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownCapability, int(t))
		}
	}
	return nil
}
