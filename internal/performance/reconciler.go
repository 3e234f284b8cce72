package performance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// nearZeroEpsilon guards the MAPE division: rows whose actual value falls
// below it are excluded from MAPE but still counted in MAE and totals
const nearZeroEpsilon = 1e-8

// horizonSearchDays is how many calendar days past the horizon date to look
// for a trading day when validating (weekends and holidays)
const horizonSearchDays = 5

// Ledger is the prediction store surface the reconciler needs
type Ledger interface {
	ListWindow(ctx context.Context, from, to time.Time) ([]*models.Prediction, error)
	ListPending(ctx context.Context) ([]*models.Prediction, error)
	Validate(ctx context.Context, id string, actualValue float64) error
	UpsertDailyMetric(ctx context.Context, m *models.DailyMetric) error
}

// SampleFetcher provides realized market closes for pending validation
type SampleFetcher interface {
	FetchSample(ctx context.Context, symbol string, windowDays int) (*models.Series, error)
}

// Reconciler joins validated predictions with realized outcomes and produces
// the aggregate performance ledger
type Reconciler struct {
	ledger Ledger
	source SampleFetcher
	symbol string
	logger zerolog.Logger
}

// NewReconciler creates a performance reconciler. source may be nil when
// pending validation is driven externally (e.g. the ground-truth consumer).
func NewReconciler(ledger Ledger, source SampleFetcher, symbol string) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		source: source,
		symbol: symbol,
		logger: log.With().Str("component", "performance_reconciler").Logger(),
	}
}

// ComputeStatistics pulls all predictions in the trailing window, partitions
// them by status and computes MAE/MAPE over the validated ones. With zero
// validated predictions both aggregates are absent, not zero. As a side
// effect the current date's DailyMetric row is recomputed as a whole.
func (r *Reconciler) ComputeStatistics(ctx context.Context, windowDays int) (*models.PerformanceStats, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -windowDays)

	predictions, err := r.ledger.ListWindow(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions for reconciliation: %w", err)
	}

	stats := aggregate(predictions, windowDays)

	metric := &models.DailyMetric{
		Date:             now.UTC().Truncate(24 * time.Hour),
		TotalPredictions: stats.TotalValidated + stats.TotalPending,
		ValidatedCount:   stats.TotalValidated,
		PendingCount:     stats.TotalPending,
		MAPE:             stats.MAPE,
		MAE:              stats.MAE,
		UpdatedAt:        now,
	}
	if err := r.ledger.UpsertDailyMetric(ctx, metric); err != nil {
		// Statistics remain valid even when the ledger write degrades fully
		r.logger.Error().Err(err).Msg("Daily metric upsert failed")
	}

	r.logger.Info().
		Int("validated", stats.TotalValidated).
		Int("pending", stats.TotalPending).
		Msg("Performance statistics reconciled")
	return stats, nil
}

// aggregate computes the window aggregates from a prediction set
func aggregate(predictions []*models.Prediction, windowDays int) *models.PerformanceStats {
	stats := &models.PerformanceStats{WindowDays: windowDays}

	var maeSum, mapeSum float64
	var mapeCount int

	for _, p := range predictions {
		if !p.IsValidated() {
			stats.TotalPending++
			continue
		}
		stats.TotalValidated++

		absErr := math.Abs(p.PredictedValue - *p.ActualValue)
		maeSum += absErr

		if math.Abs(*p.ActualValue) > nearZeroEpsilon {
			mapeSum += absErr / math.Abs(*p.ActualValue) * 100
			mapeCount++
		}
	}

	if stats.TotalValidated > 0 {
		mae := maeSum / float64(stats.TotalValidated)
		stats.MAE = &mae
	}
	if mapeCount > 0 {
		mape := mapeSum / float64(mapeCount)
		stats.MAPE = &mape
	}
	return stats
}

// ValidatePending fetches realized closes and validates every pending
// prediction whose horizon date has passed. Predictions whose horizon has
// not arrived yet are skipped; days without a realized close (weekends,
// holidays) are searched up to horizonSearchDays forward.
func (r *Reconciler) ValidatePending(ctx context.Context, lookbackDays int) (validated, remaining int, err error) {
	pending, err := r.ledger.ListPending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending predictions: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	if r.source == nil {
		return 0, len(pending), nil
	}

	series, err := r.source.FetchSample(ctx, r.symbol, lookbackDays+horizonSearchDays)
	if err != nil {
		return 0, len(pending), fmt.Errorf("failed to fetch realized closes: %w", err)
	}

	closes := closesByDate(series)
	today := dateOnly(time.Now())

	for _, p := range pending {
		horizon := dateOnly(p.HorizonDate)
		if horizon.After(today) {
			remaining++
			continue
		}

		actual, found := findClose(closes, horizon)
		if !found {
			remaining++
			continue
		}

		if err := r.ledger.Validate(ctx, p.ID, actual); err != nil {
			r.logger.Error().Err(err).Str("id", p.ID).Msg("Validation write failed")
			remaining++
			continue
		}
		validated++
	}

	r.logger.Info().
		Int("validated", validated).
		Int("remaining", remaining).
		Msg("Pending predictions reconciled against realized closes")
	return validated, remaining, nil
}

func closesByDate(series *models.Series) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(series.Observations))
	for _, o := range series.Observations {
		out[dateOnly(o.Timestamp)] = o.Close.InexactFloat64()
	}
	return out
}

func findClose(closes map[time.Time]float64, horizon time.Time) (float64, bool) {
	for offset := 0; offset <= horizonSearchDays; offset++ {
		if v, ok := closes[horizon.AddDate(0, 0, offset)]; ok {
			return v, true
		}
	}
	return 0, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
