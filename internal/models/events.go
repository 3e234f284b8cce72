package models

import "time"

// Event types published to Kafka
const (
	EventPredictionRecorded  = "PREDICTION_RECORDED"
	EventPredictionValidated = "PREDICTION_VALIDATED"
	EventDriftDetected       = "DRIFT_DETECTED"
)

// MonitorEvent represents a Kafka event emitted by the monitoring service
type MonitorEvent struct {
	EventType  string       `json:"event_type"`
	Symbol     string       `json:"symbol"`
	Prediction *Prediction  `json:"prediction,omitempty"`
	Drift      *DriftReport `json:"drift,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// GroundTruthEvent is consumed from the market-close topic and carries
// the realized value used to validate pending predictions
type GroundTruthEvent struct {
	Symbol      string    `json:"symbol"`
	Date        time.Time `json:"date"`
	ActualValue float64   `json:"actual_value"`
	Timestamp   time.Time `json:"timestamp"`
}
