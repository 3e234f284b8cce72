package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Local is the lightweight SQLite mirror used when the durable store is
// unreachable. Rows written in degraded mode carry needs_sync until pushed
// back to the durable store.
type Local struct {
	conn *sql.DB
	path string
}

// NewLocal opens (and if needed creates) the local mirror database
func NewLocal(path string) (*Local, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create local store directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	l := &Local{conn: conn, path: path}
	if err := l.configure(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := l.createSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *Local) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := l.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (l *Local) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		horizon_date TIMESTAMP NOT NULL,
		predicted_value REAL NOT NULL,
		actual_value REAL,
		status TEXT NOT NULL DEFAULT 'pending',
		model_version TEXT NOT NULL DEFAULT '',
		validated_at TIMESTAMP,
		needs_sync INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
	CREATE INDEX IF NOT EXISTS idx_predictions_needs_sync ON predictions(needs_sync);

	CREATE TABLE IF NOT EXISTS daily_metrics (
		date TIMESTAMP PRIMARY KEY,
		total_predictions INTEGER NOT NULL,
		validated_count INTEGER NOT NULL,
		pending_count INTEGER NOT NULL,
		mape REAL,
		mae REAL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := l.conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create local schema: %w", err)
	}
	return nil
}

// Name identifies this backend in diagnostics
func (l *Local) Name() string {
	return "sqlite"
}

// Ping reports whether the local store is reachable
func (l *Local) Ping(ctx context.Context) error {
	return l.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database
func (l *Local) Close() error {
	_, _ = l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return l.conn.Close()
}

// InsertPrediction stores a prediction already persisted durably
func (l *Local) InsertPrediction(ctx context.Context, pred *models.Prediction) error {
	return l.insertPrediction(ctx, pred, false)
}

// InsertPredictionForSync stores a prediction written in degraded mode,
// flagged for later push to the durable store
func (l *Local) InsertPredictionForSync(ctx context.Context, pred *models.Prediction) error {
	return l.insertPrediction(ctx, pred, true)
}

func (l *Local) insertPrediction(ctx context.Context, pred *models.Prediction, needsSync bool) error {
	query := `
		INSERT OR REPLACE INTO predictions
			(id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at, needs_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.conn.ExecContext(ctx, query,
		pred.ID, pred.Symbol, pred.CreatedAt, pred.HorizonDate, pred.PredictedValue,
		pred.ActualValue, pred.Status, pred.ModelVersion, pred.ValidatedAt, boolToInt(needsSync),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction locally: %w", err)
	}
	return nil
}

// GetPrediction retrieves one prediction by id
func (l *Local) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE id = ?
	`
	pred, err := scanPrediction(l.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction locally: %w", err)
	}
	return pred, nil
}

// UpdateValidation records ground truth; the row is flagged for sync since
// the durable store did not observe this write
func (l *Local) UpdateValidation(ctx context.Context, id string, actualValue float64, validatedAt time.Time) error {
	return l.updateValidation(ctx, id, actualValue, validatedAt, true)
}

// MirrorValidation mirrors a validation that already succeeded durably
func (l *Local) MirrorValidation(ctx context.Context, id string, actualValue float64, validatedAt time.Time) error {
	return l.updateValidation(ctx, id, actualValue, validatedAt, false)
}

func (l *Local) updateValidation(ctx context.Context, id string, actualValue float64, validatedAt time.Time, needsSync bool) error {
	query := `
		UPDATE predictions
		SET actual_value = ?, status = ?, validated_at = ?, needs_sync = ?
		WHERE id = ?
	`
	result, err := l.conn.ExecContext(ctx, query, actualValue, models.StatusValidated, validatedAt, boolToInt(needsSync), id)
	if err != nil {
		return fmt.Errorf("failed to update validation locally: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrPredictionNotFound
	}
	return nil
}

// ListRecent retrieves the most recently created predictions, newest first
func (l *Local) ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := l.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent predictions locally: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// ListWindow retrieves predictions created within [from, to), oldest first
func (l *Local) ListWindow(ctx context.Context, from, to time.Time) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`
	rows, err := l.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions window locally: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// ListPending retrieves predictions still awaiting ground truth, oldest first
func (l *Local) ListPending(ctx context.Context) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE status = ?
		ORDER BY created_at ASC
	`
	rows, err := l.conn.QueryContext(ctx, query, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending predictions locally: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// CountPredictions returns the total prediction row count
func (l *Local) CountPredictions(ctx context.Context) (int64, error) {
	var count int64
	if err := l.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions locally: %w", err)
	}
	return count, nil
}

// ListUnsynced retrieves rows written while the durable store was down
func (l *Local) ListUnsynced(ctx context.Context) ([]*models.Prediction, error) {
	query := `
		SELECT id, symbol, created_at, horizon_date, predicted_value, actual_value, status, model_version, validated_at
		FROM predictions
		WHERE needs_sync = 1
		ORDER BY created_at ASC
	`
	rows, err := l.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced predictions: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// MarkSynced clears the sync flag after a successful durable write
func (l *Local) MarkSynced(ctx context.Context, id string) error {
	_, err := l.conn.ExecContext(ctx, `UPDATE predictions SET needs_sync = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark prediction synced: %w", err)
	}
	return nil
}

// UpsertDailyMetric replaces the metric row for a date in one statement
func (l *Local) UpsertDailyMetric(ctx context.Context, m *models.DailyMetric) error {
	query := `
		INSERT OR REPLACE INTO daily_metrics
			(date, total_predictions, validated_count, pending_count, mape, mae, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.conn.ExecContext(ctx, query,
		m.Date, m.TotalPredictions, m.ValidatedCount, m.PendingCount, m.MAPE, m.MAE, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metric locally: %w", err)
	}
	return nil
}

// GetDailyMetric retrieves the metric row for a date
func (l *Local) GetDailyMetric(ctx context.Context, date time.Time) (*models.DailyMetric, error) {
	query := `
		SELECT date, total_predictions, validated_count, pending_count, mape, mae, updated_at
		FROM daily_metrics
		WHERE date = ?
	`
	m, err := scanDailyMetric(l.conn.QueryRowContext(ctx, query, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no daily metric for %s", date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily metric locally: %w", err)
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
