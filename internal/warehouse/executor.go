// Package warehouse runs SQL against the campaign data stores, either through a
// genai-toolbox MCP server or directly against Postgres.
package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// Source selects the store a statement runs against.
type Source string

const (
	// Analytics holds campaign_metrics_daily (BigQuery behind the toolbox).
	Analytics Source = "analytics"

	// Operational holds campaigns, creatives and campaign_status (Postgres).
	Operational Source = "operational"
)

// Executor runs read-only SQL statements.
type Executor interface {
	// Query runs sql against src. Transport problems wrap capability.ErrBackendUnreachable,
	// unusable answers wrap capability.ErrBackendMalformed.
	Query(ctx context.Context, src Source, sql string) (*Rows, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// Config selects and configures an executor. It is decoded from the
// `config` map of an adapter instance.
type Config struct {
	// Executor is toolbox (default) or postgres.
	Executor string `yaml:"executor"`

	// URL is the toolbox streamable HTTP endpoint.
	URL string `yaml:"url"`

	// Command runs the toolbox over stdio instead of URL (e.g. "toolbox").
	Command string `yaml:"command"`

	// Args are passed to Command (e.g. ["--tools-file", "tools.yaml"]).
	Args []string `yaml:"args"`

	// AnalyticsTool and OperationalTool name the toolbox SQL tools.
	AnalyticsTool   string `yaml:"analytics_tool"`
	OperationalTool string `yaml:"operational_tool"`

	// DSN is the Postgres connection string (postgres executor).
	DSN string `yaml:"dsn"`
}

// DefaultToolboxURL is where a locally started toolbox listens.
const DefaultToolboxURL = "http://127.0.0.1:5000/mcp"

// New creates the executor selected by cfg. Connections are established lazily
// or by Ping, so a backend that is down does not prevent construction.
func New(ctx context.Context, cfg Config) (Executor, error) {
	switch strings.ToLower(cfg.Executor) {
	case "", "toolbox":
		return NewToolboxExecutor(cfg)
	case "postgres", "postgresql":
		return NewPostgresExecutor(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown executor %q (must be toolbox or postgres)", cfg.Executor)
	}
}

// Quote returns s as a single-quoted SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
