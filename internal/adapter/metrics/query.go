package metrics

import (
	"fmt"
	"strings"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/warehouse"
)

// Breakdown is the dimension rows are grouped by besides the campaign.
type Breakdown string

const (
	BreakdownNone     Breakdown = ""
	BreakdownPlatform Breakdown = "platform"
	BreakdownSegment  Breakdown = "audience_segment"
)

var (
	platformTerms = []string{"platform", "channel", "facebook", "youtube", "tiktok", "แพลตฟอร์ม", "ช่องทาง"}
	segmentTerms  = []string{"segment", "audience", "gen z", "gen_z", "genz", "millennial", "office worker", "กลุ่มเป้าหมาย", "กลุ่มลูกค้า"}
	statusTerms   = []string{"status", "budget", "active", "paused", "สถานะ", "งบ"}
)

// breakdownFor picks the grouping dimension from the question. A dimension
// that is already pinned by an explicit filter is not broken down again.
func breakdownFor(q capability.Query) Breakdown {
	switch {
	case q.Params.Platform == "" && q.Mentions(platformTerms...):
		return BreakdownPlatform
	case q.Params.Segment == "" && q.Mentions(segmentTerms...):
		return BreakdownSegment
	default:
		return BreakdownNone
	}
}

func wantsStatus(q capability.Query) bool {
	return q.Mentions(statusTerms...)
}

// plan is everything the backend derives from a query before touching the warehouse.
type plan struct {
	table      string
	window     capability.Window
	campaignID int64
	segment    string
	platform   string
	breakdown  Breakdown
	limit      int
}

// SQL returns the aggregate statement. Dates are string literals and ratios
// are left to Go so the text runs unchanged on BigQuery and Postgres.
func (p plan) SQL() string {
	cols := []string{"campaign_id"}
	if p.breakdown != BreakdownNone {
		cols = append(cols, string(p.breakdown))
	}
	group := strings.Join(cols, ", ")

	where := []string{
		fmt.Sprintf("date >= %s", warehouse.Quote(p.window.Since.Format("2006-01-02"))),
		fmt.Sprintf("date < %s", warehouse.Quote(p.window.Until.Format("2006-01-02"))),
	}
	if p.campaignID > 0 {
		where = append(where, fmt.Sprintf("campaign_id = %d", p.campaignID))
	}
	if p.segment != "" {
		where = append(where, "audience_segment = "+warehouse.Quote(p.segment))
	}
	if p.platform != "" {
		where = append(where, "platform = "+warehouse.Quote(p.platform))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, SUM(impressions) AS impressions, SUM(clicks) AS clicks, ", group)
	b.WriteString("SUM(spend) AS spend, SUM(conversions) AS conversions, SUM(spend * roas) AS revenue ")
	fmt.Fprintf(&b, "FROM %s WHERE %s ", p.table, strings.Join(where, " AND "))
	fmt.Fprintf(&b, "GROUP BY %s ORDER BY spend DESC, %s LIMIT %d", group, group, p.limit)
	return b.String()
}

// statusSQL reads operational state for the campaigns in the result.
func statusSQL(ids []int64) string {
	list := make([]string, len(ids))
	for i, id := range ids {
		list[i] = fmt.Sprintf("%d", id)
	}
	return "SELECT c.campaign_id, c.name, c.status, cs.is_active, cs.budget_remaining " +
		"FROM campaigns c LEFT JOIN campaign_status cs ON c.campaign_id = cs.campaign_id " +
		"WHERE c.campaign_id IN (" + strings.Join(list, ", ") + ") ORDER BY c.campaign_id"
}
