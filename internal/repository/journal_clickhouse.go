package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

// CHJournal implements ForecastJournal backed by ClickHouse.
type CHJournal struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.ForecastJournal = (*CHJournal)(nil)

func NewCHJournal(ch *pkgch.Client, l *applogger.Logger) *CHJournal {
	return &CHJournal{
		ch:    ch,
		db:    ch.DB(),
		table: ch.Database() + ".forecast_runs",
		l:     l,
	}
}

func (s *CHJournal) Init(ctx context.Context) error {
	return s.ch.Exec(ctx,
		`CREATE DATABASE IF NOT EXISTS `+s.ch.Database(),
		`CREATE TABLE IF NOT EXISTS `+s.table+` (
			id String,
			symbol LowCardinality(String),
			period LowCardinality(String),
			strategy LowCardinality(String),
			created_at DateTime64(3, 'UTC'),
			points UInt16,
			dates Array(Date),
			predicted Array(Float64),
			actual Array(Float64),
			rmse Float64,
			mae Float64
		) ENGINE = MergeTree
		ORDER BY (symbol, created_at)
		TTL toDateTime(created_at) + INTERVAL 180 DAY`,
	)
}

func (s *CHJournal) Record(ctx context.Context, run models.ForecastRun) error {
	start := time.Now()
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, period, strategy, created_at, points, dates, predicted, actual, rmse, mae)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	actual := run.Actual
	if actual == nil {
		actual = []float64{}
	}
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Symbol, run.Period, string(run.Strategy), run.CreatedAt.UTC(),
		uint16(len(run.Predicted)), run.Dates, run.Predicted, actual, run.RMSE, run.MAE,
	)
	if err != nil {
		s.l.Error("clickhouse journal insert error",
			applogger.String("table", s.table),
			applogger.String("symbol", run.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("record forecast: %w", err)
	}
	s.l.Debug("clickhouse journal insert ok",
		applogger.String("id", run.ID),
		applogger.String("symbol", run.Symbol),
		applogger.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *CHJournal) Recent(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error) {
	q := fmt.Sprintf(`
		SELECT id, symbol, period, strategy, created_at, dates, predicted, actual, rmse, mae
		FROM %s
		WHERE symbol = ?
		ORDER BY created_at DESC
		LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		s.l.Error("clickhouse journal query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("recent forecasts: %w", err)
	}
	defer rows.Close()

	out := make([]models.ForecastRun, 0, limit)
	for rows.Next() {
		var (
			r        models.ForecastRun
			strategy string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Period, &strategy, &r.CreatedAt,
			&r.Dates, &r.Predicted, &r.Actual, &r.RMSE, &r.MAE); err != nil {
			return nil, fmt.Errorf("scan forecast run: %w", err)
		}
		r.Strategy = models.Strategy(strategy)
		if len(r.Actual) == 0 {
			r.Actual = nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHJournal) Health(ctx context.Context) error { return s.ch.Health(ctx) }

func (s *CHJournal) Close() error { return s.ch.Close() }
