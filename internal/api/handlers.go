package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

const defaultPerformanceWindowDays = 7

// PredictionStore is the ledger surface the handlers need
type PredictionStore interface {
	Record(ctx context.Context, pred *models.Prediction) error
	Get(ctx context.Context, id string) (*models.Prediction, error)
	Validate(ctx context.Context, id string, actualValue float64) error
	ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error)
	GetDailyMetrics(ctx context.Context, date time.Time) (*models.DailyMetric, error)
	Status(ctx context.Context) *models.StoreDiagnostic
}

// DriftService exposes the drift check and its cached latest report
type DriftService interface {
	Run(ctx context.Context) *models.DriftReport
	Latest() *models.DriftReport
}

// StatsComputer reconciles prediction performance over a trailing window
type StatsComputer interface {
	ComputeStatistics(ctx context.Context, windowDays int) (*models.PerformanceStats, error)
	ValidatePending(ctx context.Context, lookbackDays int) (validated, remaining int, err error)
}

// EventPublisher publishes monitoring events; may be nil when Kafka is not
// configured
type EventPublisher interface {
	PublishPredictionRecorded(ctx context.Context, pred *models.Prediction) error
	PublishPredictionValidated(ctx context.Context, pred *models.Prediction) error
	PublishDriftDetected(ctx context.Context, report *models.DriftReport) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store      PredictionStore
	drift      DriftService
	reconciler StatsComputer
	producer   EventPublisher
	logger     zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(store PredictionStore, drift DriftService, reconciler StatsComputer, producer EventPublisher) *Handler {
	return &Handler{
		store:      store,
		drift:      drift,
		reconciler: reconciler,
		producer:   producer,
		logger:     log.With().Str("component", "api").Logger(),
	}
}

// GetDriftStatus handles GET /drift: the latest report without recomputation
func (h *Handler) GetDriftStatus(w http.ResponseWriter, r *http.Request) {
	report := h.drift.Latest()
	if report == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "no drift report available yet"})
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// RunDriftCheck handles POST /drift/run: the scheduled-trigger entry point
func (h *Handler) RunDriftCheck(w http.ResponseWriter, r *http.Request) {
	report := h.drift.Run(r.Context())

	if h.producer != nil && report.DriftDetected {
		if err := h.producer.PublishDriftDetected(r.Context(), report); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish drift event")
		}
	}

	respondJSON(w, http.StatusOK, report)
}

// performanceResponse bundles statistics with the recent prediction ledger
type performanceResponse struct {
	Statistics        *models.PerformanceStats `json:"statistics"`
	RecentPredictions []*models.Prediction     `json:"recent_predictions"`
	Degraded          bool                     `json:"degraded,omitempty"`
}

// GetPerformance handles GET /performance. Monitoring consumers always get a
// well-formed object; storage failures mark it degraded instead of erroring.
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	windowDays := queryInt(r, "window", defaultPerformanceWindowDays)

	resp := performanceResponse{RecentPredictions: []*models.Prediction{}}

	stats, err := h.reconciler.ComputeStatistics(r.Context(), windowDays)
	if err != nil {
		h.logger.Error().Err(err).Msg("Performance reconciliation degraded")
		resp.Degraded = true
	} else {
		resp.Statistics = stats
	}

	recent, err := h.store.ListRecent(r.Context(), 10)
	if err != nil {
		h.logger.Error().Err(err).Msg("Recent predictions read degraded")
		resp.Degraded = true
	} else if recent != nil {
		resp.RecentPredictions = recent
	}

	respondJSON(w, http.StatusOK, resp)
}

// ReconcilePerformance handles POST /performance/reconcile: validates matured
// pending predictions against realized closes, then recomputes the window
// statistics
func (h *Handler) ReconcilePerformance(w http.ResponseWriter, r *http.Request) {
	lookbackDays := queryInt(r, "lookback", 30)
	windowDays := queryInt(r, "window", defaultPerformanceWindowDays)

	validated, remaining, err := h.reconciler.ValidatePending(r.Context(), lookbackDays)
	if err != nil {
		h.logger.Error().Err(err).Msg("Pending validation failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	stats, err := h.reconciler.ComputeStatistics(r.Context(), windowDays)
	if err != nil {
		h.logger.Error().Err(err).Msg("Performance reconciliation failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"validated":  validated,
		"remaining":  remaining,
		"statistics": stats,
	})
}

// GetDiagnostic handles GET /diagnostic: per-backend reachability and counts
func (h *Handler) GetDiagnostic(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Status(r.Context()))
}

// RecordPrediction handles POST /predictions
func (h *Handler) RecordPrediction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol         string  `json:"symbol"`
		HorizonDate    string  `json:"horizon_date"`
		PredictedValue float64 `json:"predicted_value"`
		ModelVersion   string  `json:"model_version"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Symbol == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	horizon, err := time.Parse("2006-01-02", req.HorizonDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "horizon_date must be YYYY-MM-DD"})
		return
	}

	pred := &models.Prediction{
		Symbol:         req.Symbol,
		HorizonDate:    horizon,
		PredictedValue: req.PredictedValue,
		ModelVersion:   req.ModelVersion,
	}

	if err := h.store.Record(r.Context(), pred); err != nil {
		h.logger.Error().Err(err).Msg("Failed to record prediction")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prediction could not be persisted"})
		return
	}

	if h.producer != nil {
		if err := h.producer.PublishPredictionRecorded(r.Context(), pred); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish prediction event")
		}
	}

	respondJSON(w, http.StatusCreated, pred)
}

// ValidatePrediction handles POST /predictions/{id}/validate
func (h *Handler) ValidatePrediction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		ActualValue float64 `json:"actual_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	err := h.store.Validate(r.Context(), id, req.ActualValue)
	switch {
	case errors.Is(err, models.ErrPredictionNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "prediction not found"})
		return
	case errors.Is(err, models.ErrInconsistentValidation):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, models.ErrBackendUnreachable):
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no storage backend reachable"})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("id", id).Msg("Validation failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.producer != nil {
		if pred, getErr := h.store.Get(r.Context(), id); getErr == nil {
			if pubErr := h.producer.PublishPredictionValidated(r.Context(), pred); pubErr != nil {
				h.logger.Warn().Err(pubErr).Str("id", id).Msg("Failed to publish validation event")
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "validated"})
}

// ListPredictions handles GET /predictions
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	predictions, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no storage backend reachable"})
		return
	}
	if predictions == nil {
		predictions = []*models.Prediction{}
	}
	respondJSON(w, http.StatusOK, predictions)
}

// GetDailyMetric handles GET /metrics/daily?date=YYYY-MM-DD
func (h *Handler) GetDailyMetric(w http.ResponseWriter, r *http.Request) {
	dateParam := r.URL.Query().Get("date")
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if dateParam != "" {
		parsed, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	metric, err := h.store.GetDailyMetrics(r.Context(), date)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, metric)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
