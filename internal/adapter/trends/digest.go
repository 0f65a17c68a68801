package trends

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moolen/insight/internal/capability"
)

// Topic is a trending theme.
type Topic struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Sentiment is the overall tone and what drives it.
type Sentiment struct {
	// Overall is positive, negative, neutral or mixed.
	Overall string   `json:"overall"`
	Drivers []string `json:"drivers,omitempty"`
}

// Source is a post or page the digest is based on.
type Source struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Snippet  string `json:"snippet,omitempty"`
}

// Digest is the trends payload.
type Digest struct {
	Topics      []Topic   `json:"topics"`
	Sentiment   Sentiment `json:"sentiment"`
	Summary     string    `json:"summary,omitempty"`
	Sources     []Source  `json:"sources"`
	Platforms   []string  `json:"platforms"`
	RecencyDays int       `json:"recency_days"`
	Notes       []string  `json:"notes,omitempty"`

	// Origin names what produced the digest (search engine or model).
	Origin string `json:"origin"`
}

var sentiments = map[string]bool{"positive": true, "negative": true, "neutral": true, "mixed": true}

// normalizeSentiment maps model output onto the four labels. Anything else
// becomes "" (not assessed).
func normalizeSentiment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if sentiments[s] {
		return s
	}
	return ""
}

// Tag implements capability.Payload.
func (d *Digest) Tag() capability.Tag { return capability.Trends }

// Empty implements capability.Payload.
func (d *Digest) Empty() bool {
	return len(d.Topics) == 0 && len(d.Sources) == 0 && d.Summary == ""
}

// Freshness describes the period the digest covers.
func (d *Digest) Freshness() string {
	if d.RecencyDays == 1 {
		return "past day"
	}
	return fmt.Sprintf("past %d days", d.RecencyDays)
}

// Metadata implements capability.MetadataProvider.
func (d *Digest) Metadata() map[string]string {
	return map[string]string{
		"source":    d.Origin,
		"platforms": strings.Join(d.Platforms, ","),
		"freshness": d.Freshness(),
		"results":   strconv.Itoa(len(d.Sources)),
	}
}

// Render implements capability.Payload.
func (d *Digest) Render() string {
	if d.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Platforms:** %s · **Freshness:** %s\n", strings.Join(d.Platforms, ", "), d.Freshness())

	if len(d.Topics) > 0 {
		b.WriteString("\n**Trending topics**\n\n")
		for i, t := range d.Topics {
			if t.Detail != "" {
				fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, t.Title, t.Detail)
			} else {
				fmt.Fprintf(&b, "%d. **%s**\n", i+1, t.Title)
			}
		}
	}

	if d.Sentiment.Overall != "" {
		fmt.Fprintf(&b, "\n**Sentiment:** %s", d.Sentiment.Overall)
		if len(d.Sentiment.Drivers) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(d.Sentiment.Drivers, "; "))
		}
		b.WriteString("\n")
	}

	if d.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Summary)
	}

	if len(d.Sources) > 0 {
		b.WriteString("\n**Sources**\n\n")
		for _, s := range d.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&b, "- [%s](%s) (%s)\n", strings.ReplaceAll(title, "]", ")"), s.URL, s.Platform)
		}
	}
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "\n_%s_\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

// analysis is the JSON shape models are asked to answer in.
type analysis struct {
	Topics    []Topic `json:"topics"`
	Sentiment struct {
		Overall string   `json:"overall"`
		Drivers []string `json:"drivers"`
	} `json:"sentiment"`
	Summary string `json:"summary"`
}

const analysisFormat = `Answer with a single JSON object and nothing else:
{"topics": [{"title": "...", "detail": "..."}], "sentiment": {"overall": "positive|negative|neutral|mixed", "drivers": ["..."]}, "summary": "..."}
Use at most 5 topics. Write titles, details and the summary in the language of the question.
If nothing relevant was found return {"topics": [], "sentiment": {"overall": ""}, "summary": ""}.`

func (a analysis) apply(d *Digest) {
	for _, t := range a.Topics {
		if strings.TrimSpace(t.Title) != "" {
			d.Topics = append(d.Topics, t)
		}
	}
	d.Sentiment = Sentiment{Overall: normalizeSentiment(a.Sentiment.Overall), Drivers: a.Sentiment.Drivers}
	d.Summary = strings.TrimSpace(a.Summary)
}
