package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

const snapshotKeyPrefix = "marketdata:snapshot:"

// SnapshotStore persists the last successfully fetched series so that the
// chain can still answer when both live sources are down. Writes are
// last-write-wins; staleness is acceptable and flagged downstream.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSnapshotStore creates a redis-backed snapshot cache. A zero ttl keeps
// snapshots indefinitely.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		ttl:    ttl,
		logger: log.With().Str("component", "snapshot_store").Logger(),
	}
}

// Name identifies this provider in DriftReport attribution
func (s *SnapshotStore) Name() models.DataSource {
	return models.SourceCachedSnapshot
}

// Fetch loads the last-known-good series; the stored FetchedAt is preserved
// so callers can judge staleness
func (s *SnapshotStore) Fetch(ctx context.Context, symbol string, _ int) (*models.Series, error) {
	payload, err := s.client.Get(ctx, snapshotKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no cached snapshot for %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached snapshot: %w", err)
	}

	var series models.Series
	if err := json.Unmarshal(payload, &series); err != nil {
		return nil, fmt.Errorf("corrupt cached snapshot for %s: %w", symbol, err)
	}
	if len(series.Observations) == 0 {
		return nil, fmt.Errorf("cached snapshot for %s is empty", symbol)
	}

	series.Source = models.SourceCachedSnapshot
	return &series, nil
}

// Save stores the series as the new last-known-good snapshot
func (s *SnapshotStore) Save(ctx context.Context, series *models.Series) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+series.Symbol, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
