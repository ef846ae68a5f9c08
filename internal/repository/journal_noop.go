package repository

import (
	"context"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// NoopJournal discards runs. Used when journal.backend is "none".
type NoopJournal struct{}

var _ domrepo.ForecastJournal = NoopJournal{}

func (NoopJournal) Init(context.Context) error                       { return nil }
func (NoopJournal) Record(context.Context, models.ForecastRun) error { return nil }
func (NoopJournal) Recent(context.Context, string, int) ([]models.ForecastRun, error) {
	return nil, nil
}
func (NoopJournal) Health(context.Context) error { return nil }
func (NoopJournal) Close() error                 { return nil }
