// Package metrics answers campaign performance questions with aggregate SQL
// over the campaign_metrics_daily table.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/warehouse"
)

// Type is the adapter type name.
const Type = "metrics"

// Version is the backend implementation version.
const Version = "1.0.0"

func init() {
	if err := adapter.RegisterFactory(Type, NewInstance); err != nil {
		logger := logging.GetLogger("adapter.metrics")
		logger.Warn("Failed to register metrics factory: %v", err)
	}
}

// Config is the `config` map of a metrics instance.
type Config struct {
	warehouse.Config `yaml:",squash"`

	// Table is the daily metrics table. Default: campaign_metrics_daily
	Table string `yaml:"table"`

	// Limit caps the number of groups returned. Default: 20
	Limit int `yaml:"limit"`

	// DefaultDays is the window used when the query carries none. Default: 30
	DefaultDays int `yaml:"default_days"`
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = "campaign_metrics_daily"
	}
	if c.Limit <= 0 {
		c.Limit = 20
	}
	if c.DefaultDays <= 0 {
		c.DefaultDays = 30
	}
}

// Backend implements adapter.Instance for the metrics capability.
type Backend struct {
	name   string
	config Config
	exec   warehouse.Executor
	health *adapter.HealthState
	logger *logging.Logger
	now    func() time.Time
}

// NewInstance is the adapter.Factory for metrics instances.
func NewInstance(name string, raw map[string]interface{}, _ adapter.Deps) (adapter.Instance, error) {
	var cfg Config
	if err := adapter.DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	exec, err := warehouse.New(context.Background(), cfg.Config)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, exec), nil
}

// New creates a backend that runs its statements through exec.
func New(name string, cfg Config, exec warehouse.Executor) *Backend {
	cfg.applyDefaults()
	return &Backend{
		name:   name,
		config: cfg,
		exec:   exec,
		health: adapter.NewHealthState(),
		logger: logging.GetLogger("adapter.metrics").WithField("instance", name),
		now:    time.Now,
	}
}

// Tag implements capability.Backend.
func (b *Backend) Tag() capability.Tag { return capability.Metrics }

// Metadata implements adapter.Instance.
func (b *Backend) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        b.name,
		Version:     Version,
		Description: "Campaign performance from " + b.config.Table,
		Type:        Type,
	}
}

// Start implements adapter.Instance.
func (b *Backend) Start(ctx context.Context) error {
	b.health.Set(adapter.Degraded)
	return b.health.Observe(b.exec.Ping(ctx))
}

// Stop implements adapter.Instance.
func (b *Backend) Stop(ctx context.Context) error {
	b.health.Set(adapter.Stopped)
	return b.exec.Close()
}

// Health implements adapter.Instance.
func (b *Backend) Health(ctx context.Context) adapter.HealthStatus {
	if b.health.Get() == adapter.Stopped {
		return adapter.Stopped
	}
	_ = b.health.Observe(b.exec.Ping(ctx))
	return b.health.Get()
}

// Fetch implements capability.Backend.
func (b *Backend) Fetch(ctx context.Context, req capability.Request) (capability.Payload, error) {
	q := req.Query
	p := plan{
		table:     b.config.Table,
		window:    q.Params.Window.Resolve(b.now(), b.config.DefaultDays),
		segment:   q.Params.Segment,
		platform:  q.Params.Platform,
		breakdown: breakdownFor(q),
		limit:     b.config.Limit,
	}
	if id, ok := q.CampaignID(); ok {
		p.campaignID = id
	}

	sql := p.SQL()
	rows, err := b.exec.Query(ctx, warehouse.Analytics, sql)
	if err != nil {
		return nil, err
	}

	table := &Table{
		Window:    p.window,
		Breakdown: p.breakdown,
		Source:    p.table,
		SQL:       sql,
	}
	for i := 0; i < rows.Len(); i++ {
		r := Row{
			CampaignID:  rows.Int(i, "campaign_id"),
			Impressions: rows.Int(i, "impressions"),
			Clicks:      rows.Int(i, "clicks"),
			Conversions: rows.Int(i, "conversions"),
			Spend:       rows.Float(i, "spend"),
			Revenue:     rows.Float(i, "revenue"),
		}
		if p.breakdown != BreakdownNone {
			r.Dimension = rows.String(i, string(p.breakdown))
		}
		table.Rows = append(table.Rows, r)
		table.Totals.add(r)
	}
	if len(table.Rows) == p.limit {
		table.Notes = append(table.Notes, fmt.Sprintf("Showing the top %d groups by spend.", p.limit))
	}

	if !table.Empty() && wantsStatus(q) {
		b.attachStatuses(ctx, table)
	}
	return table, nil
}

// attachStatuses joins operational state. A failure here degrades the table to
// metrics only and is noted in it.
func (b *Backend) attachStatuses(ctx context.Context, table *Table) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, r := range table.Rows {
		if !seen[r.CampaignID] {
			seen[r.CampaignID] = true
			ids = append(ids, r.CampaignID)
		}
	}

	rows, err := b.exec.Query(ctx, warehouse.Operational, statusSQL(ids))
	if err != nil {
		b.logger.WithContext(ctx).Warn("Campaign status lookup failed: %v", err)
		table.Notes = append(table.Notes, "Campaign status is unavailable.")
		return
	}
	for i := 0; i < rows.Len(); i++ {
		table.Statuses = append(table.Statuses, Status{
			CampaignID:      rows.Int(i, "campaign_id"),
			Name:            rows.String(i, "name"),
			Status:          rows.String(i, "status"),
			Active:          rows.Bool(i, "is_active"),
			BudgetRemaining: rows.Float(i, "budget_remaining"),
		})
	}
}
