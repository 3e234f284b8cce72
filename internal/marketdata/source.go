package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// SnapshotSaver persists a successfully fetched series for later degraded reads
type SnapshotSaver interface {
	Save(ctx context.Context, series *models.Series) error
}

// Source assembles a market sample by trying an ordered chain of providers.
// Strategies run strictly in sequence: a later provider is attempted only
// after the earlier one has failed, so source attribution stays unambiguous.
type Source struct {
	providers      []Provider
	saver          SnapshotSaver
	attemptTimeout time.Duration
	logger         zerolog.Logger
}

// NewSource creates a Source over the given provider chain. saver may be nil
// to disable snapshot write-back.
func NewSource(providers []Provider, saver SnapshotSaver, attemptTimeout time.Duration) *Source {
	if attemptTimeout == 0 {
		attemptTimeout = 10 * time.Second
	}
	return &Source{
		providers:      providers,
		saver:          saver,
		attemptTimeout: attemptTimeout,
		logger:         log.With().Str("component", "marketdata_source").Logger(),
	}
}

// FetchSample returns the first successful provider's series, trimmed to the
// most recent windowDays observations and tagged with the producing source.
// When every provider fails the returned error wraps models.ErrDataUnavailable.
func (s *Source) FetchSample(ctx context.Context, symbol string, windowDays int) (*models.Series, error) {
	var failures []string

	for _, provider := range s.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		series, err := provider.Fetch(attemptCtx, symbol, windowDays)
		cancel()

		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("source", string(provider.Name())).
				Msg("Acquisition strategy failed")
			failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
			continue
		}

		series.Source = provider.Name()
		if len(series.Observations) > windowDays {
			series.Observations = series.Observations[len(series.Observations)-windowDays:]
		}

		if provider.Name() != models.SourceCachedSnapshot {
			s.cacheSnapshot(ctx, series)
		}

		s.logger.Info().
			Str("source", string(series.Source)).
			Int("observations", len(series.Observations)).
			Msg("Market sample acquired")
		return series, nil
	}

	return nil, fmt.Errorf("%w: %s", models.ErrDataUnavailable, strings.Join(failures, "; "))
}

// cacheSnapshot persists the series best-effort; a cache failure must not
// fail the fetch
func (s *Source) cacheSnapshot(ctx context.Context, series *models.Series) {
	if s.saver == nil {
		return
	}
	if err := s.saver.Save(ctx, series); err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot write-back failed")
	}
}
