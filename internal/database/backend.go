package database

import (
	"context"
	"time"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Backend is one storage backend for predictions and daily metrics. Both the
// durable Postgres store and the local SQLite mirror implement it.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	InsertPrediction(ctx context.Context, p *models.Prediction) error
	GetPrediction(ctx context.Context, id string) (*models.Prediction, error)
	UpdateValidation(ctx context.Context, id string, actualValue float64, validatedAt time.Time) error
	ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error)
	ListWindow(ctx context.Context, from, to time.Time) ([]*models.Prediction, error)
	ListPending(ctx context.Context) ([]*models.Prediction, error)
	CountPredictions(ctx context.Context) (int64, error)

	UpsertDailyMetric(ctx context.Context, m *models.DailyMetric) error
	GetDailyMetric(ctx context.Context, date time.Time) (*models.DailyMetric, error)
}
