package models

import "time"

// DailyMetric is the aggregate performance row for one calendar date.
// Recomputed as a whole on every reconciliation run; a partial row is
// never visible. MAPE and MAE are nil when no validated predictions exist.
type DailyMetric struct {
	Date             time.Time `json:"date"`
	TotalPredictions int       `json:"total_predictions"`
	ValidatedCount   int       `json:"validated_count"`
	PendingCount     int       `json:"pending_count"`
	MAPE             *float64  `json:"mape,omitempty"`
	MAE              *float64  `json:"mae,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PerformanceStats is the reconciled accuracy summary for a window of days
type PerformanceStats struct {
	WindowDays     int      `json:"window_days"`
	MAPE           *float64 `json:"mape,omitempty"`
	MAE            *float64 `json:"mae,omitempty"`
	TotalValidated int      `json:"total_validated"`
	TotalPending   int      `json:"total_pending"`
}

// BackendStatus reports reachability and row count for one storage backend
type BackendStatus struct {
	Name            string `json:"name"`
	Reachable       bool   `json:"reachable"`
	PredictionCount int64  `json:"prediction_count"`
	Error           string `json:"error,omitempty"`
}

// StoreDiagnostic aggregates per-backend status for divergence detection.
// Diverged is set when both backends answered but disagree on row count.
type StoreDiagnostic struct {
	Durable  BackendStatus `json:"durable"`
	Local    BackendStatus `json:"local"`
	Diverged bool          `json:"diverged"`
}
