package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moolen/insight/internal/capability"
)

// PostgresExecutor runs every source against one Postgres database that holds
// both the operational tables and a copy of campaign_metrics_daily.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor creates a pool for dsn. The pool connects lazily.
func NewPostgresExecutor(ctx context.Context, dsn string) (*PostgresExecutor, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres executor requires 'dsn'")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &PostgresExecutor{pool: pool}, nil
}

// Query implements Executor.
func (e *PostgresExecutor) Query(ctx context.Context, src Source, sql string) (*Rows, error) {
	if src != Analytics && src != Operational {
		return nil, fmt.Errorf("unknown warehouse source %q", src)
	}

	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, capability.Unreachable("postgres: %v", err)
	}
	defer rows.Close()

	out := &Rows{}
	for _, fd := range rows.FieldDescriptions() {
		out.Columns = append(out.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, capability.Malformed("postgres row: %v", err)
		}
		rec := make(map[string]interface{}, len(values))
		for i, v := range values {
			rec[out.Columns[i]] = normalizeValue(v)
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, capability.Malformed("postgres: %v", err)
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

// Ping implements Executor.
func (e *PostgresExecutor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return capability.Unreachable("postgres ping: %v", err)
	}
	return nil
}

// Close implements Executor.
func (e *PostgresExecutor) Close() error {
	e.pool.Close()
	return nil
}
