package capability

import (
	"fmt"
	"strings"
	"time"
)

// QueryInput is the wire form of a query shared by the HTTP API, the MCP tools
// and the CLI flags. Dates may be ISO or human-readable.
type QueryInput struct {
	Query        string   `json:"query"`
	CampaignID   int64    `json:"campaign_id,omitempty"`
	Since        string   `json:"since,omitempty"`
	Until        string   `json:"until,omitempty"`
	Segment      string   `json:"segment,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Build parses in into a Query relative to now. Unknown capability names
// fail with ErrUnknownCapability.
func (in QueryInput) Build(now time.Time) (Query, error) {
	text := strings.TrimSpace(in.Query)
	if text == "" && len(in.Capabilities) == 0 {
		return Query{}, fmt.Errorf("query text is required")
	}

	window, err := ParseWindow(in.Since, in.Until, now)
	if err != nil {
		return Query{}, err
	}
	tags, err := ParseTags(in.Capabilities)
	if err != nil {
		return Query{}, err
	}
	if len(tags) == 0 {
		tags = nil
	}

	q := Query{
		Text: text,
		Params: Params{
			CampaignID:   in.CampaignID,
			Window:       window,
			Segment:      strings.ToLower(strings.TrimSpace(in.Segment)),
			Platform:     strings.ToLower(strings.TrimSpace(in.Platform)),
			Capabilities: tags,
		},
	}
	if err := q.Params.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}
