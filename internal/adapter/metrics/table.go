package metrics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/moolen/insight/internal/capability"
)

// Row is one aggregated group.
type Row struct {
	CampaignID  int64   `json:"campaign_id"`
	Dimension   string  `json:"dimension,omitempty"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
}

// CTR is clicks per impression.
func (r Row) CTR() float64 { return ratio(float64(r.Clicks), float64(r.Impressions)) }

// CPC is spend per click.
func (r Row) CPC() float64 { return ratio(r.Spend, float64(r.Clicks)) }

// CVR is conversions per click.
func (r Row) CVR() float64 { return ratio(float64(r.Conversions), float64(r.Clicks)) }

// ROAS is revenue per unit of spend.
func (r Row) ROAS() float64 { return ratio(r.Revenue, r.Spend) }

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func (r *Row) add(o Row) {
	r.Impressions += o.Impressions
	r.Clicks += o.Clicks
	r.Conversions += o.Conversions
	r.Spend += o.Spend
	r.Revenue += o.Revenue
}

// Status is the operational state of a campaign.
type Status struct {
	CampaignID      int64   `json:"campaign_id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Active          bool    `json:"is_active"`
	BudgetRemaining float64 `json:"budget_remaining"`
}

// Table is the metrics payload.
type Table struct {
	Window    capability.Window `json:"window"`
	Breakdown Breakdown         `json:"breakdown,omitempty"`
	Rows      []Row             `json:"rows"`
	Totals    Row               `json:"totals"`
	Statuses  []Status          `json:"statuses,omitempty"`
	Notes     []string          `json:"notes,omitempty"`
	Source    string            `json:"source"`
	SQL       string            `json:"sql"`
}

// Tag implements capability.Payload.
func (t *Table) Tag() capability.Tag { return capability.Metrics }

// Empty implements capability.Payload.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// Metadata implements capability.MetadataProvider.
func (t *Table) Metadata() map[string]string {
	md := map[string]string{
		"source": t.Source,
		"window": t.Window.String(),
		"rows":   strconv.Itoa(len(t.Rows)),
		"query":  t.SQL,
	}
	if t.Breakdown != BreakdownNone {
		md["breakdown"] = string(t.Breakdown)
	}
	return md
}

// Render implements capability.Payload.
func (t *Table) Render() string {
	if t.Empty() {
		return ""
	}
	names := make(map[int64]string, len(t.Statuses))
	for _, s := range t.Statuses {
		names[s.CampaignID] = s.Name
	}

	var b strings.Builder
	header := []string{"Campaign"}
	if t.Breakdown != BreakdownNone {
		header = append(header, breakdownTitle(t.Breakdown))
	}
	header = append(header, "Impressions", "Clicks", "Spend", "Conversions", "CTR", "CPC", "CVR", "ROAS")
	writeRow(&b, header)
	writeSeparator(&b, len(header))

	for _, r := range t.Rows {
		campaign := strconv.FormatInt(r.CampaignID, 10)
		if name := names[r.CampaignID]; name != "" {
			campaign += " · " + escape(name)
		}
		cells := []string{campaign}
		if t.Breakdown != BreakdownNone {
			cells = append(cells, escape(r.Dimension))
		}
		writeRow(&b, append(cells, metricCells(r)...))
	}

	fmt.Fprintf(&b, "\n**Total:** %s impressions, %s clicks, spend %s, %s conversions, CTR %s, CPC %s, CVR %s, ROAS %s\n",
		humanize.Comma(t.Totals.Impressions), humanize.Comma(t.Totals.Clicks), money(t.Totals.Spend),
		humanize.Comma(t.Totals.Conversions), percent(t.Totals.CTR()), money(t.Totals.CPC()),
		percent(t.Totals.CVR()), multiple(t.Totals.ROAS()))

	if len(t.Statuses) > 0 {
		b.WriteString("\n")
		writeRow(&b, []string{"Campaign", "Name", "Status", "Active", "Budget remaining"})
		writeSeparator(&b, 5)
		for _, s := range t.Statuses {
			active := "no"
			if s.Active {
				active = "yes"
			}
			writeRow(&b, []string{strconv.FormatInt(s.CampaignID, 10), escape(s.Name), escape(s.Status), active, money(s.BudgetRemaining)})
		}
	}
	for _, n := range t.Notes {
		fmt.Fprintf(&b, "\n_%s_\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func metricCells(r Row) []string {
	return []string{
		humanize.Comma(r.Impressions),
		humanize.Comma(r.Clicks),
		money(r.Spend),
		humanize.Comma(r.Conversions),
		percent(r.CTR()),
		money(r.CPC()),
		percent(r.CVR()),
		multiple(r.ROAS()),
	}
}

func breakdownTitle(b Breakdown) string {
	if b == BreakdownSegment {
		return "Segment"
	}
	return "Platform"
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

func writeSeparator(b *strings.Builder, n int) {
	b.WriteString("|" + strings.Repeat("---|", n) + "\n")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func money(v float64) string { return humanize.FormatFloat("#,###.##", v) }

func percent(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

func multiple(v float64) string { return fmt.Sprintf("%.2f", v) }
