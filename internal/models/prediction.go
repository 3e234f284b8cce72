package models

import "time"

// PredictionStatus tracks the validation lifecycle of a prediction
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "pending"
	StatusValidated PredictionStatus = "validated"
)

// Prediction represents a single forecast issued by the model.
// ActualValue is nil until ground truth for HorizonDate becomes available,
// at which point the prediction transitions pending -> validated exactly once.
type Prediction struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	CreatedAt      time.Time        `json:"created_at"`
	HorizonDate    time.Time        `json:"horizon_date"`
	PredictedValue float64          `json:"predicted_value"`
	ActualValue    *float64         `json:"actual_value,omitempty"`
	Status         PredictionStatus `json:"status"`
	ModelVersion   string           `json:"model_version"`
	ValidatedAt    *time.Time       `json:"validated_at,omitempty"`
}

// IsValidated reports whether ground truth has been recorded
func (p *Prediction) IsValidated() bool {
	return p.Status == StatusValidated && p.ActualValue != nil
}
