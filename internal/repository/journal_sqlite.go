package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
	pkgsqlite "FinCast/pkg/sqlite"
	"FinCast/pkg/util"
)

// SQLiteJournal implements ForecastJournal on an embedded SQLite file.
// Arrays are stored as JSON text.
type SQLiteJournal struct {
	client *pkgsqlite.Client
	db     *sql.DB
	l      *applogger.Logger
}

var _ domrepo.ForecastJournal = (*SQLiteJournal)(nil)

func NewSQLiteJournal(c *pkgsqlite.Client, l *applogger.Logger) *SQLiteJournal {
	return &SQLiteJournal{client: c, db: c.DB(), l: l}
}

func (s *SQLiteJournal) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, []string{
		`CREATE TABLE IF NOT EXISTS forecast_runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			period TEXT NOT NULL,
			strategy TEXT NOT NULL,
			created_at TEXT NOT NULL,
			points INTEGER NOT NULL,
			dates TEXT NOT NULL,
			predicted TEXT NOT NULL,
			actual TEXT,
			rmse REAL NOT NULL DEFAULT 0,
			mae REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_runs_symbol ON forecast_runs(symbol, created_at)`,
	})
}

func (s *SQLiteJournal) Record(ctx context.Context, run models.ForecastRun) error {
	dates, err := json.Marshal(models.FormatDates(run.Dates))
	if err != nil {
		return fmt.Errorf("encode dates: %w", err)
	}
	predicted, err := json.Marshal(run.Predicted)
	if err != nil {
		return fmt.Errorf("encode predicted: %w", err)
	}
	var actual sql.NullString
	if run.Actual != nil {
		b, err := json.Marshal(run.Actual)
		if err != nil {
			return fmt.Errorf("encode actual: %w", err)
		}
		actual = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forecast_runs (id, symbol, period, strategy, created_at, points, dates, predicted, actual, rmse, mae)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Period, string(run.Strategy),
		run.CreatedAt.UTC().Format(time.RFC3339Nano), len(run.Predicted),
		string(dates), string(predicted), actual, run.RMSE, run.MAE,
	)
	if err != nil {
		s.l.Error("sqlite journal insert error",
			applogger.String("symbol", run.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("record forecast: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) Recent(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, period, strategy, created_at, dates, predicted, actual, rmse, mae
		 FROM forecast_runs WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`,
		symbol, limit)
	if err != nil {
		s.l.Error("sqlite journal query error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("recent forecasts: %w", err)
	}
	defer rows.Close()

	var out []models.ForecastRun
	for rows.Next() {
		var (
			r                        models.ForecastRun
			strategy, created        string
			datesJSON, predictedJSON string
			actualJSON               sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Period, &strategy, &created,
			&datesJSON, &predictedJSON, &actualJSON, &r.RMSE, &r.MAE); err != nil {
			return nil, fmt.Errorf("scan forecast run: %w", err)
		}
		r.Strategy = models.Strategy(strategy)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if r.Dates, err = decodeDates(datesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(predictedJSON), &r.Predicted); err != nil {
			return nil, fmt.Errorf("decode predicted: %w", err)
		}
		if actualJSON.Valid {
			if err := json.Unmarshal([]byte(actualJSON.String), &r.Actual); err != nil {
				return nil, fmt.Errorf("decode actual: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteJournal) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *SQLiteJournal) Close() error { return s.client.Close() }

func decodeDates(raw string) ([]time.Time, error) {
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return nil, fmt.Errorf("decode dates: %w", err)
	}
	out, err := util.ParseDays(ss)
	if err != nil {
		return nil, fmt.Errorf("decode dates: %w", err)
	}
	return out, nil
}
