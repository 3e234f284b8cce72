package database

import (
	"database/sql"
	"fmt"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*models.Prediction, error) {
	var p models.Prediction
	var actualValue sql.NullFloat64
	var validatedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Symbol, &p.CreatedAt, &p.HorizonDate, &p.PredictedValue,
		&actualValue, &p.Status, &p.ModelVersion, &validatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actualValue.Valid {
		p.ActualValue = &actualValue.Float64
	}
	if validatedAt.Valid {
		p.ValidatedAt = &validatedAt.Time
	}
	return &p, nil
}

func scanPredictions(rows *sql.Rows) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return predictions, nil
}

func scanDailyMetric(row rowScanner) (*models.DailyMetric, error) {
	var m models.DailyMetric
	var mape, mae sql.NullFloat64

	err := row.Scan(
		&m.Date, &m.TotalPredictions, &m.ValidatedCount, &m.PendingCount,
		&mape, &mae, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mape.Valid {
		m.MAPE = &mape.Float64
	}
	if mae.Valid {
		m.MAE = &mae.Float64
	}
	return &m, nil
}
