package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// actualValueTolerance bounds what still counts as "the same" ground truth
// when a validation is replayed
const actualValueTolerance = 1e-9

const lockStripes = 64

// Store is the dual-backed prediction ledger. The durable store is the
// source of truth; the local mirror keeps the service writable when the
// durable store is unreachable, flagging rows for later reconciliation.
type Store struct {
	durable Backend
	local   *Local
	logger  zerolog.Logger

	idLocks [lockStripes]sync.Mutex
	dateMu  sync.Mutex
}

// NewStore creates a Store over the durable backend and local mirror
func NewStore(durable Backend, local *Local) *Store {
	return &Store{
		durable: durable,
		local:   local,
		logger:  log.With().Str("component", "prediction_store").Logger(),
	}
}

// Record persists a newly issued prediction. The durable store is written
// first; when it is down the write degrades to local-only and the row is
// flagged for later sync. Both backends failing is an error.
func (s *Store) Record(ctx context.Context, pred *models.Prediction) error {
	if pred.ID == "" {
		pred.ID = uuid.NewString()
	}
	if pred.CreatedAt.IsZero() {
		pred.CreatedAt = time.Now()
	}
	if pred.Status == "" {
		pred.Status = models.StatusPending
	}

	durableErr := s.durable.InsertPrediction(ctx, pred)
	if durableErr == nil {
		// Synchronous mirror, best-effort
		if err := s.local.InsertPrediction(ctx, pred); err != nil {
			s.logger.Warn().Err(err).Str("id", pred.ID).Msg("Local mirror write failed")
		}
		return nil
	}

	s.logger.Warn().Err(durableErr).Str("id", pred.ID).Msg("Durable write failed, degrading to local")
	if err := s.local.InsertPredictionForSync(ctx, pred); err != nil {
		return fmt.Errorf("%w: durable: %v, local: %v", models.ErrBackendUnreachable, durableErr, err)
	}
	return nil
}

// Validate records ground truth for a prediction. Validating an already
// validated prediction with the same value is a no-op; a differing value is
// models.ErrInconsistentValidation. Calls for the same id serialize.
func (s *Store) Validate(ctx context.Context, id string, actualValue float64) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	pred, err := s.getPrediction(ctx, id)
	if err != nil {
		return err
	}

	if pred.IsValidated() {
		if math.Abs(*pred.ActualValue-actualValue) <= actualValueTolerance {
			return nil
		}
		return fmt.Errorf("%w: id=%s recorded=%v new=%v",
			models.ErrInconsistentValidation, id, *pred.ActualValue, actualValue)
	}

	validatedAt := time.Now()
	durableErr := s.durable.UpdateValidation(ctx, id, actualValue, validatedAt)
	if durableErr == nil {
		if mirrorErr := s.local.MirrorValidation(ctx, id, actualValue, validatedAt); mirrorErr != nil {
			s.logger.Warn().Err(mirrorErr).Str("id", id).Msg("Local validation mirror failed")
		}
		return nil
	}

	s.logger.Warn().Err(durableErr).Str("id", id).Msg("Durable validation failed, degrading to local")
	if err := s.local.UpdateValidation(ctx, id, actualValue, validatedAt); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBackendUnreachable, err)
	}
	return nil
}

// Get returns one prediction by id, preferring the durable store but
// surfacing an unsynced degraded-mode validation from the mirror
func (s *Store) Get(ctx context.Context, id string) (*models.Prediction, error) {
	return s.getPrediction(ctx, id)
}

// ListRecent returns the newest predictions, preferring the durable store
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error) {
	predictions, err := s.durable.ListRecent(ctx, limit)
	if err == nil {
		return predictions, nil
	}
	s.logger.Warn().Err(err).Msg("Durable read failed, serving local (may be stale)")
	return s.local.ListRecent(ctx, limit)
}

// ListWindow returns predictions created in [from, to), preferring durable
func (s *Store) ListWindow(ctx context.Context, from, to time.Time) ([]*models.Prediction, error) {
	predictions, err := s.durable.ListWindow(ctx, from, to)
	if err == nil {
		return predictions, nil
	}
	s.logger.Warn().Err(err).Msg("Durable read failed, serving local (may be stale)")
	return s.local.ListWindow(ctx, from, to)
}

// ListPending returns predictions awaiting ground truth, preferring durable
func (s *Store) ListPending(ctx context.Context) ([]*models.Prediction, error) {
	predictions, err := s.durable.ListPending(ctx)
	if err == nil {
		return predictions, nil
	}
	s.logger.Warn().Err(err).Msg("Durable read failed, serving local (may be stale)")
	return s.local.ListPending(ctx)
}

// UpsertDailyMetric replaces the metric row for the metric's date. Writers
// for a date are mutually exclusive so a partial row is never visible.
func (s *Store) UpsertDailyMetric(ctx context.Context, m *models.DailyMetric) error {
	s.dateMu.Lock()
	defer s.dateMu.Unlock()

	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}

	durableErr := s.durable.UpsertDailyMetric(ctx, m)
	if durableErr == nil {
		if err := s.local.UpsertDailyMetric(ctx, m); err != nil {
			s.logger.Warn().Err(err).Msg("Local daily metric mirror failed")
		}
		return nil
	}

	s.logger.Warn().Err(durableErr).Msg("Durable metric write failed, degrading to local")
	if err := s.local.UpsertDailyMetric(ctx, m); err != nil {
		return fmt.Errorf("%w: durable: %v, local: %v", models.ErrBackendUnreachable, durableErr, err)
	}
	return nil
}

// GetDailyMetrics returns the metric row for a date, preferring durable
func (s *Store) GetDailyMetrics(ctx context.Context, date time.Time) (*models.DailyMetric, error) {
	m, err := s.durable.GetDailyMetric(ctx, date)
	if err == nil {
		return m, nil
	}
	return s.local.GetDailyMetric(ctx, date)
}

// Status reports reachability and row count per backend. A count mismatch
// between reachable backends signals a missed sync.
func (s *Store) Status(ctx context.Context) *models.StoreDiagnostic {
	diag := &models.StoreDiagnostic{
		Durable: backendStatus(ctx, s.durable),
		Local:   backendStatus(ctx, s.local),
	}
	diag.Diverged = diag.Durable.Reachable && diag.Local.Reachable &&
		diag.Durable.PredictionCount != diag.Local.PredictionCount
	return diag
}

// SyncLocal pushes rows written in degraded mode back to the durable store.
// The durable store is the conflict-resolution authority: rows it already
// holds are overwritten only through UpdateValidation, never duplicated.
func (s *Store) SyncLocal(ctx context.Context) (int, error) {
	unsynced, err := s.local.ListUnsynced(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, pred := range unsynced {
		durableRow, getErr := s.durable.GetPrediction(ctx, pred.ID)
		switch {
		case getErr == nil && pred.IsValidated() && durableRow.IsValidated():
			// Both sides validated: the durable value wins, but a mismatch is
			// surfaced and resolved locally instead of silently overwritten
			if math.Abs(*durableRow.ActualValue-*pred.ActualValue) > actualValueTolerance {
				s.logger.Error().
					Str("id", pred.ID).
					Float64("durable", *durableRow.ActualValue).
					Float64("local", *pred.ActualValue).
					Msg("Conflicting ground truth found during sync, keeping durable value")
				if err := s.local.MirrorValidation(ctx, pred.ID, *durableRow.ActualValue, derefTime(durableRow.ValidatedAt)); err != nil {
					return synced, err
				}
			}
		case getErr == nil && pred.IsValidated():
			if err := s.durable.UpdateValidation(ctx, pred.ID, *pred.ActualValue, derefTime(pred.ValidatedAt)); err != nil {
				return synced, fmt.Errorf("failed to sync validation %s: %w", pred.ID, err)
			}
		case getErr == nil:
			// Row already durable and still pending locally, nothing to push
		default:
			if err := s.durable.InsertPrediction(ctx, pred); err != nil {
				return synced, fmt.Errorf("failed to sync prediction %s: %w", pred.ID, err)
			}
		}

		if err := s.local.MarkSynced(ctx, pred.ID); err != nil {
			return synced, err
		}
		synced++
	}

	if synced > 0 {
		s.logger.Info().Int("synced", synced).Msg("Local rows reconciled to durable store")
	}
	return synced, nil
}

func (s *Store) getPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	pred, err := s.durable.GetPrediction(ctx, id)
	if err == nil {
		if pred.IsValidated() {
			return pred, nil
		}
		// A still-pending durable row may lag a validation accepted in
		// degraded mode that only reached the mirror
		if local, localErr := s.local.GetPrediction(ctx, id); localErr == nil && local.IsValidated() {
			return local, nil
		}
		return pred, nil
	}
	if errors.Is(err, models.ErrPredictionNotFound) {
		// Authoritative miss still falls through to local: the row may have
		// been written in degraded mode and not yet synced
		if local, localErr := s.local.GetPrediction(ctx, id); localErr == nil {
			return local, nil
		}
		return nil, models.ErrPredictionNotFound
	}
	return s.local.GetPrediction(ctx, id)
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.idLocks[h.Sum32()%lockStripes]
}

func backendStatus(ctx context.Context, b Backend) models.BackendStatus {
	status := models.BackendStatus{Name: b.Name()}

	if err := b.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status
	}

	count, err := b.CountPredictions(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Reachable = true
	status.PredictionCount = count
	return status
}

func derefTime(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}
