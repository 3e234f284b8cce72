package drift

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// SampleFetcher assembles a market sample through the acquisition chain
type SampleFetcher interface {
	FetchSample(ctx context.Context, symbol string, windowDays int) (*models.Series, error)
}

// Detector compares the fixed training-time reference distribution against a
// freshly fetched market window. Drift status is advisory monitoring output:
// Detect never returns an error, a total data failure yields a degraded report.
type Detector struct {
	source         SampleFetcher
	symbol         string
	windowDays     int
	significance   float64
	snapshotMaxAge time.Duration
	logger         zerolog.Logger

	mu     sync.RWMutex
	latest *models.DriftReport
}

// Options holds detector configuration
type Options struct {
	Symbol            string
	WindowDays        int
	SignificanceLevel float64
	SnapshotMaxAge    time.Duration
}

// NewDetector creates a drift detector over the given sample source
func NewDetector(source SampleFetcher, opts Options) *Detector {
	if opts.SignificanceLevel == 0 {
		opts.SignificanceLevel = 0.05
	}
	if opts.WindowDays == 0 {
		opts.WindowDays = 60
	}
	if opts.SnapshotMaxAge == 0 {
		opts.SnapshotMaxAge = 24 * time.Hour
	}
	return &Detector{
		source:         source,
		symbol:         opts.Symbol,
		windowDays:     opts.WindowDays,
		significance:   opts.SignificanceLevel,
		snapshotMaxAge: opts.SnapshotMaxAge,
		logger:         log.With().Str("component", "drift_detector").Logger(),
	}
}

// Detect runs one drift check for featureName against the reference
// distribution and publishes the result as the latest report
func (d *Detector) Detect(ctx context.Context, featureName string, reference []float64) *models.DriftReport {
	// PValue starts at 1 so an inconclusive run (no data, too few
	// observations) can never read as significant
	report := &models.DriftReport{
		GeneratedAt:    time.Now(),
		FeatureName:    featureName,
		Symbol:         d.symbol,
		PValue:         1,
		Severity:       models.SeverityNone,
		DataSourceUsed: models.SourceNone,
		Alerts:         []string{},
	}

	series, err := d.source.FetchSample(ctx, d.symbol, d.windowDays)
	if err != nil {
		d.logger.Error().Err(err).Msg("Drift check degraded: no market data")
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("market data unavailable, drift status inconclusive: %v", err))
		d.publish(report)
		return report
	}

	report.DataSourceUsed = series.Source
	if series.Source == models.SourceCachedSnapshot {
		report.CacheMode = true
		age := series.Age(report.GeneratedAt)
		if age > d.snapshotMaxAge {
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("using stale cached snapshot fetched %.0fh ago, reduced confidence", age.Hours()))
		} else {
			report.Alerts = append(report.Alerts,
				"using cached snapshot, reduced confidence")
		}
	}

	current := featureSeries(series, featureName)
	report.SampleSize = len(current)
	if len(current) < 2 {
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("insufficient observations (%d) for feature %q", len(current), featureName))
		d.publish(report)
		return report
	}

	statistic, pValue := ksTest(reference, current)
	report.Statistic = statistic
	report.PValue = pValue
	report.ReferenceMean = stat.Mean(reference, nil)
	report.CurrentMean = stat.Mean(current, nil)
	report.ShiftPct = relativeShiftPct(report.ReferenceMean, report.CurrentMean)
	report.DriftDetected = pValue < d.significance
	report.Severity = classifySeverity(pValue, report.ShiftPct, d.significance)

	if report.DriftDetected {
		direction := "increased"
		if report.CurrentMean < report.ReferenceMean {
			direction = "decreased"
		}
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("%s %s %.1f%% relative to reference (KS p-value=%.4f)",
				featureName, direction, report.ShiftPct, pValue))
	}

	d.logger.Info().
		Str("feature", featureName).
		Float64("p_value", pValue).
		Bool("drift_detected", report.DriftDetected).
		Str("severity", string(report.Severity)).
		Str("source", string(report.DataSourceUsed)).
		Msg("Drift check completed")

	d.publish(report)
	return report
}

// Latest returns the most recent report without recomputation, or nil when
// no detection run has happened yet
func (d *Detector) Latest() *models.DriftReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

func (d *Detector) publish(report *models.DriftReport) {
	d.mu.Lock()
	d.latest = report
	d.mu.Unlock()
}

// classifySeverity applies the fixed threshold table: a p-value at or above
// the significance level is always none; below it the relative shift decides.
func classifySeverity(pValue, shiftPct, significance float64) models.DriftSeverity {
	if pValue >= significance {
		return models.SeverityNone
	}
	switch {
	case shiftPct < 25:
		return models.SeverityLow
	case shiftPct <= 60:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}

// relativeShiftPct computes |current-reference| / |reference| * 100
func relativeShiftPct(reference, current float64) float64 {
	if math.Abs(reference) < 1e-12 {
		return 0
	}
	return math.Abs(current-reference) / math.Abs(reference) * 100
}

// featureSeries extracts the named feature from the raw observations.
// "close" is the raw close series; "volatility" is the absolute log return
// between consecutive closes.
func featureSeries(series *models.Series, featureName string) []float64 {
	closes := series.Closes()
	switch featureName {
	case "volatility":
		if len(closes) < 2 {
			return nil
		}
		out := make([]float64, 0, len(closes)-1)
		for i := 1; i < len(closes); i++ {
			if closes[i-1] <= 0 || closes[i] <= 0 {
				continue
			}
			out = append(out, math.Abs(math.Log(closes[i]/closes[i-1])))
		}
		return out
	default:
		return closes
	}
}
