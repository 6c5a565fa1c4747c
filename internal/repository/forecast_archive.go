package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	applogger "CoinCast/pkg/logger"
)

// ForecastsTable holds one row per predicted point.
const ForecastsTable = "forecasts"

// sqlDB is the subset of *sql.DB used by the archive.
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// ClickHouseForecastArchive implements ForecastArchive for ClickHouse.
type ClickHouseForecastArchive struct {
	db    sqlDB
	table string
	now   func() time.Time
	l     *applogger.Logger
}

// NewClickHouseForecastArchive creates the archive. The connection pool is
// owned by pkg/clickhouse.Client.
func NewClickHouseForecastArchive(db sqlDB, table string, l *applogger.Logger) *ClickHouseForecastArchive {
	if table == "" {
		table = ForecastsTable
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseForecastArchive{db: db, table: table, now: time.Now, l: l}
}

// SchemaStatements returns the DDL for the archive table.
func (s *ClickHouseForecastArchive) SchemaStatements() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            coin_id      LowCardinality(String),
            model        LowCardinality(String),
            interval     LowCardinality(String),
            horizon      UInt32,
            ts           DateTime64(3, 'UTC'),
            price        Float64,
            generated_at DateTime64(3, 'UTC')
        )
        ENGINE = MergeTree
        ORDER BY (coin_id, model, interval, generated_at, ts)
    `, s.table)}
}

func (s *ClickHouseForecastArchive) Init(ctx context.Context) error {
	for _, stmt := range s.SchemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

// SaveForecast inserts every predicted point of r in chunks of multi-row VALUES.
func (s *ClickHouseForecastArchive) SaveForecast(ctx context.Context, r *models.ForecastResult) error {
	if r == nil || len(r.Predictions) == 0 {
		return nil
	}
	start := time.Now()
	generatedAt := s.now().UTC()

	const chunkSize = 2000
	for lo := 0; lo < len(r.Predictions); lo += chunkSize {
		hi := min(lo+chunkSize, len(r.Predictions))

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*7)
		for _, p := range r.Predictions[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.CoinID,
				string(r.Model),
				string(r.Interval),
				uint32(r.Horizon),
				p.Time(),
				p.Price,
				generatedAt,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (coin_id, model, interval, horizon, ts, price, generated_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_forecast error",
				applogger.String("table", s.table),
				applogger.String("coin_id", r.CoinID),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("save forecast: %w", err)
		}
	}

	s.l.Debug("clickhouse save_forecast ok",
		applogger.String("table", s.table),
		applogger.String("coin_id", r.CoinID),
		applogger.Int("rows", len(r.Predictions)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *ClickHouseForecastArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseForecastArchive) Close() error {
	return nil // Managed by pkg
}

// NopArchive discards forecasts.
type NopArchive struct{}

func (NopArchive) Init(context.Context) error { return nil }
func (NopArchive) SaveForecast(context.Context, *models.ForecastResult) error { return nil }
func (NopArchive) Health(context.Context) error { return nil }
func (NopArchive) Close() error { return nil }

var (
	_ repository.ForecastArchive = (*ClickHouseForecastArchive)(nil)
	_ repository.ForecastArchive = NopArchive{}
)
