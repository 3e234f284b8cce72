package models

import "time"

// DataSource identifies which acquisition strategy produced a market sample
type DataSource string

const (
	SourcePrimaryAPI      DataSource = "primary_api"
	SourceFallbackLibrary DataSource = "fallback_library"
	SourceCachedSnapshot  DataSource = "cached_snapshot"
	SourceNone            DataSource = "none"
)

// DriftSeverity classifies how badly the input distribution has moved
type DriftSeverity string

const (
	SeverityNone   DriftSeverity = "none"
	SeverityLow    DriftSeverity = "low"
	SeverityMedium DriftSeverity = "medium"
	SeverityHigh   DriftSeverity = "high"
)

// DriftReport is the immutable result of one drift detection run.
// Statistic and PValue are plain scalars; CacheMode is true when the
// sample came from the cached snapshot and confidence is reduced.
type DriftReport struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	FeatureName    string        `json:"feature_name"`
	Symbol         string        `json:"symbol"`
	Statistic      float64       `json:"statistic"`
	PValue         float64       `json:"p_value"`
	DriftDetected  bool          `json:"drift_detected"`
	Severity       DriftSeverity `json:"severity"`
	DataSourceUsed DataSource    `json:"data_source_used"`
	CacheMode      bool          `json:"cache_mode"`
	Alerts         []string      `json:"alerts"`
	ReferenceMean  float64       `json:"reference_mean"`
	CurrentMean    float64       `json:"current_mean"`
	ShiftPct       float64       `json:"shift_pct"`
	SampleSize     int           `json:"sample_size"`
}
