package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one timestamped market data point
type Observation struct {
	Timestamp time.Time       `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// Series is an ordered (oldest first) sample of market observations,
// tagged with the acquisition strategy that produced it
type Series struct {
	Symbol       string        `json:"symbol"`
	Observations []Observation `json:"observations"`
	FetchedAt    time.Time     `json:"fetched_at"`
	Source       DataSource    `json:"source"`
}

// Closes returns the close prices as a float slice, oldest first
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = o.Close.InexactFloat64()
	}
	return out
}

// Age returns how long ago the series was fetched
func (s *Series) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
