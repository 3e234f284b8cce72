package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Postgres is the durable backend and the source of truth for predictions
type Postgres struct {
	conn *sql.DB
}

// NewPostgres connects to the durable store
func NewPostgres(connStr string) (*Postgres, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

// Name identifies this backend in diagnostics
func (p *Postgres) Name() string {
	return "postgres"
}

// Ping reports whether the durable store is reachable
func (p *Postgres) Ping(ctx context.Context) error {
	return p.conn.PingContext(ctx)
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.conn.Close()
}

// Conn exposes the underlying pool for migrations
func (p *Postgres) Conn() *sql.DB {
	return p.conn
}

// InsertPrediction stores a newly issued prediction
func (p *Postgres) InsertPrediction(ctx context.Context, pred *models.Prediction) error {
	query := `
		INSERT INTO predictions (id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.conn.ExecContext(ctx, query,
		pred.ID, pred.Symbol, pred.CreatedAt, pred.HorizonDate, pred.PredictedValue,
		pred.ActualValue, pred.Status, pred.ModelVersion, pred.ValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// GetPrediction retrieves one prediction by id
func (p *Postgres) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE id = $1
	`
	pred, err := scanPrediction(p.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return pred, nil
}

// UpdateValidation records ground truth for a prediction exactly once
func (p *Postgres) UpdateValidation(ctx context.Context, id string, actualValue float64, validatedAt time.Time) error {
	query := `
		UPDATE predictions
		SET actual_value = $2, status = $3, validated_at = $4
		WHERE id = $1
	`
	result, err := p.conn.ExecContext(ctx, query, id, actualValue, models.StatusValidated, validatedAt)
	if err != nil {
		return fmt.Errorf("failed to update validation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrPredictionNotFound
	}
	return nil
}

// ListRecent retrieves the most recently created predictions, newest first
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := p.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent predictions: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// ListWindow retrieves predictions created within [from, to), oldest first
func (p *Postgres) ListWindow(ctx context.Context, from, to time.Time) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := p.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions window: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// ListPending retrieves predictions still awaiting ground truth, oldest first
func (p *Postgres) ListPending(ctx context.Context) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := p.conn.QueryContext(ctx, query, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending predictions: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// CountPredictions returns the total prediction row count
func (p *Postgres) CountPredictions(ctx context.Context) (int64, error) {
	var count int64
	if err := p.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// UpsertDailyMetric replaces the metric row for a date in one statement,
// so a partial row is never visible
func (p *Postgres) UpsertDailyMetric(ctx context.Context, m *models.DailyMetric) error {
	query := `
		INSERT INTO daily_metrics (date, total_predictions, validated_count, pending_count, mape, mae, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			total_predictions = EXCLUDED.total_predictions,
			validated_count = EXCLUDED.validated_count,
			pending_count = EXCLUDED.pending_count,
			mape = EXCLUDED.mape,
			mae = EXCLUDED.mae,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.conn.ExecContext(ctx, query,
		m.Date, m.TotalPredictions, m.ValidatedCount, m.PendingCount, m.MAPE, m.MAE, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metric: %w", err)
	}
	return nil
}

// GetDailyMetric retrieves the metric row for a date
func (p *Postgres) GetDailyMetric(ctx context.Context, date time.Time) (*models.DailyMetric, error) {
	query := `
		SELECT date, total_predictions, validated_count, pending_count, mape, mae, updated_at
		FROM daily_metrics
		WHERE date = $1
	`
	m, err := scanDailyMetric(p.conn.QueryRowContext(ctx, query, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no daily metric for %s", date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily metric: %w", err)
	}
	return m, nil
}
