package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

type stubStore struct {
	recorded    []*models.Prediction
	recordErr   error
	prediction  *models.Prediction
	validateErr error
	recent      []*models.Prediction
	recentErr   error
	metric      *models.DailyMetric
	diagnostic  *models.StoreDiagnostic
}

func (s *stubStore) Record(ctx context.Context, pred *models.Prediction) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, pred)
	return nil
}

func (s *stubStore) Get(ctx context.Context, id string) (*models.Prediction, error) {
	if s.prediction == nil {
		return nil, models.ErrPredictionNotFound
	}
	return s.prediction, nil
}

func (s *stubStore) Validate(ctx context.Context, id string, actualValue float64) error {
	return s.validateErr
}

func (s *stubStore) ListRecent(ctx context.Context, limit int) ([]*models.Prediction, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.recent, nil
}

func (s *stubStore) GetDailyMetrics(ctx context.Context, date time.Time) (*models.DailyMetric, error) {
	if s.metric == nil {
		return nil, errors.New("no daily metric")
	}
	return s.metric, nil
}

func (s *stubStore) Status(ctx context.Context) *models.StoreDiagnostic {
	return s.diagnostic
}

type stubDrift struct {
	report *models.DriftReport
	latest *models.DriftReport
}

func (s *stubDrift) Run(ctx context.Context) *models.DriftReport { return s.report }
func (s *stubDrift) Latest() *models.DriftReport                 { return s.latest }

type stubStats struct {
	stats       *models.PerformanceStats
	err         error
	validated   int
	remaining   int
	validateErr error
	pendingRuns int
}

func (s *stubStats) ComputeStatistics(ctx context.Context, windowDays int) (*models.PerformanceStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func (s *stubStats) ValidatePending(ctx context.Context, lookbackDays int) (int, int, error) {
	s.pendingRuns++
	if s.validateErr != nil {
		return 0, s.remaining, s.validateErr
	}
	return s.validated, s.remaining, nil
}

type stubPublisher struct {
	driftEvents      []*models.DriftReport
	predictionEvents []*models.Prediction
	validatedEvents  []*models.Prediction
}

func (s *stubPublisher) PublishPredictionRecorded(ctx context.Context, pred *models.Prediction) error {
	s.predictionEvents = append(s.predictionEvents, pred)
	return nil
}

func (s *stubPublisher) PublishPredictionValidated(ctx context.Context, pred *models.Prediction) error {
	s.validatedEvents = append(s.validatedEvents, pred)
	return nil
}

func (s *stubPublisher) PublishDriftDetected(ctx context.Context, report *models.DriftReport) error {
	s.driftEvents = append(s.driftEvents, report)
	return nil
}

func serveRequest(handler *Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	router := SetupRoutes(handler)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetDriftStatus(t *testing.T) {
	t.Run("no report yet", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		rec := serveRequest(handler, http.MethodGet, "/api/v1/drift", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns the cached report", func(t *testing.T) {
		latest := &models.DriftReport{FeatureName: "close", PValue: 0.2, Severity: models.SeverityNone}
		handler := NewHandler(&stubStore{}, &stubDrift{latest: latest}, &stubStats{}, nil)

		rec := serveRequest(handler, http.MethodGet, "/api/v1/drift", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got models.DriftReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "close", got.FeatureName)
		assert.InDelta(t, 0.2, got.PValue, 1e-9)
	})
}

func TestRunDriftCheck(t *testing.T) {
	t.Run("publishes an event when drift is detected", func(t *testing.T) {
		report := &models.DriftReport{FeatureName: "close", DriftDetected: true, Severity: models.SeverityHigh}
		publisher := &stubPublisher{}
		handler := NewHandler(&stubStore{}, &stubDrift{report: report}, &stubStats{}, publisher)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/drift/run", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, publisher.driftEvents, 1)
	})

	t.Run("no event without drift", func(t *testing.T) {
		report := &models.DriftReport{FeatureName: "close", DriftDetected: false}
		publisher := &stubPublisher{}
		handler := NewHandler(&stubStore{}, &stubDrift{report: report}, &stubStats{}, publisher)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/drift/run", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, publisher.driftEvents)
	})
}

func TestGetPerformance(t *testing.T) {
	t.Run("healthy path", func(t *testing.T) {
		mape := 1.53
		mae := 0.20
		stats := &models.PerformanceStats{WindowDays: 7, TotalValidated: 9, TotalPending: 3, MAPE: &mape, MAE: &mae}
		store := &stubStore{recent: []*models.Prediction{{ID: "p1", Symbol: "B3SA3.SA"}}}
		handler := NewHandler(store, &stubDrift{}, &stubStats{stats: stats}, nil)

		rec := serveRequest(handler, http.MethodGet, "/api/v1/performance", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got performanceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.NotNil(t, got.Statistics)
		assert.InDelta(t, 1.53, *got.Statistics.MAPE, 1e-9)
		assert.Len(t, got.RecentPredictions, 1)
		assert.False(t, got.Degraded)
	})

	t.Run("storage outage degrades instead of failing", func(t *testing.T) {
		store := &stubStore{recentErr: errors.New("both backends down")}
		handler := NewHandler(store, &stubDrift{}, &stubStats{err: errors.New("both backends down")}, nil)

		rec := serveRequest(handler, http.MethodGet, "/api/v1/performance", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got performanceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Degraded)
		assert.Nil(t, got.Statistics)
		assert.NotNil(t, got.RecentPredictions, "consumers always get a well-formed list")
	})
}

func TestRecordPrediction(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		store := &stubStore{}
		publisher := &stubPublisher{}
		handler := NewHandler(store, &stubDrift{}, &stubStats{}, publisher)

		body := []byte(`{"symbol": "B3SA3.SA", "horizon_date": "2026-08-25", "predicted_value": 13.42, "model_version": "v3"}`)
		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions", body)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, store.recorded, 1)
		assert.Equal(t, "B3SA3.SA", store.recorded[0].Symbol)
		assert.InDelta(t, 13.42, store.recorded[0].PredictedValue, 1e-9)
		assert.Len(t, publisher.predictionEvents, 1)
	})

	t.Run("missing symbol", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		body := []byte(`{"horizon_date": "2026-08-25", "predicted_value": 13.42}`)
		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad horizon date", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		body := []byte(`{"symbol": "B3SA3.SA", "horizon_date": "25/08/2026", "predicted_value": 13.42}`)
		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		store := &stubStore{recordErr: models.ErrBackendUnreachable}
		handler := NewHandler(store, &stubDrift{}, &stubStats{}, nil)
		body := []byte(`{"symbol": "B3SA3.SA", "horizon_date": "2026-08-25", "predicted_value": 13.42}`)
		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions", body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestValidatePrediction(t *testing.T) {
	body := []byte(`{"actual_value": 13.25}`)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"unknown prediction", models.ErrPredictionNotFound, http.StatusNotFound},
		{"conflicting replay", models.ErrInconsistentValidation, http.StatusConflict},
		{"storage outage", models.ErrBackendUnreachable, http.StatusServiceUnavailable},
		{"unexpected failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&stubStore{validateErr: tt.err}, &stubDrift{}, &stubStats{}, nil)
			rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions/abc123/validate", body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	t.Run("successful validation publishes an event", func(t *testing.T) {
		actual := 13.25
		store := &stubStore{prediction: &models.Prediction{
			ID:          "abc123",
			Symbol:      "B3SA3.SA",
			ActualValue: &actual,
			Status:      models.StatusValidated,
		}}
		publisher := &stubPublisher{}
		handler := NewHandler(store, &stubDrift{}, &stubStats{}, publisher)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions/abc123/validate", body)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, publisher.validatedEvents, 1)
		assert.Equal(t, "abc123", publisher.validatedEvents[0].ID)
	})

	t.Run("failed validation publishes nothing", func(t *testing.T) {
		publisher := &stubPublisher{}
		handler := NewHandler(&stubStore{validateErr: models.ErrPredictionNotFound}, &stubDrift{}, &stubStats{}, publisher)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/predictions/abc123/validate", body)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, publisher.validatedEvents)
	})
}

func TestReconcilePerformance(t *testing.T) {
	t.Run("validates pending rows then recomputes statistics", func(t *testing.T) {
		mape := 1.53
		stats := &stubStats{
			stats:     &models.PerformanceStats{WindowDays: 7, TotalValidated: 9, MAPE: &mape},
			validated: 2,
			remaining: 1,
		}
		handler := NewHandler(&stubStore{}, &stubDrift{}, stats, nil)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/performance/reconcile", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, stats.pendingRuns)

		var got struct {
			Validated  int                      `json:"validated"`
			Remaining  int                      `json:"remaining"`
			Statistics *models.PerformanceStats `json:"statistics"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Validated)
		assert.Equal(t, 1, got.Remaining)
		require.NotNil(t, got.Statistics)
		assert.InDelta(t, 1.53, *got.Statistics.MAPE, 1e-9)
	})

	t.Run("market data outage surfaces", func(t *testing.T) {
		stats := &stubStats{validateErr: errors.New("market data unavailable"), remaining: 3}
		handler := NewHandler(&stubStore{}, &stubDrift{}, stats, nil)

		rec := serveRequest(handler, http.MethodPost, "/api/v1/performance/reconcile", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestListPredictions(t *testing.T) {
	t.Run("empty ledger returns an empty list", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		rec := serveRequest(handler, http.MethodGet, "/api/v1/predictions", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("storage outage", func(t *testing.T) {
		handler := NewHandler(&stubStore{recentErr: errors.New("down")}, &stubDrift{}, &stubStats{}, nil)
		rec := serveRequest(handler, http.MethodGet, "/api/v1/predictions", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetDailyMetric(t *testing.T) {
	t.Run("known date", func(t *testing.T) {
		mape := 1.53
		store := &stubStore{metric: &models.DailyMetric{
			Date:             time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
			TotalPredictions: 12,
			ValidatedCount:   9,
			PendingCount:     3,
			MAPE:             &mape,
		}}
		handler := NewHandler(store, &stubDrift{}, &stubStats{}, nil)

		rec := serveRequest(handler, http.MethodGet, "/api/v1/metrics/daily?date=2026-08-23", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got models.DailyMetric
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 9, got.ValidatedCount)
	})

	t.Run("bad date parameter", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		rec := serveRequest(handler, http.MethodGet, "/api/v1/metrics/daily?date=23-08-2026", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing metric", func(t *testing.T) {
		handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
		rec := serveRequest(handler, http.MethodGet, "/api/v1/metrics/daily?date=2026-08-23", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetDiagnostic(t *testing.T) {
	store := &stubStore{diagnostic: &models.StoreDiagnostic{
		Durable: models.BackendStatus{Name: "postgres", Reachable: false, Error: "connection refused"},
		Local:   models.BackendStatus{Name: "sqlite", Reachable: true, PredictionCount: 3},
	}}
	handler := NewHandler(store, &stubDrift{}, &stubStats{}, nil)

	rec := serveRequest(handler, http.MethodGet, "/api/v1/diagnostic", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.StoreDiagnostic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Durable.Reachable)
	assert.Equal(t, int64(3), got.Local.PredictionCount)
}

func TestHealthCheck(t *testing.T) {
	handler := NewHandler(&stubStore{}, &stubDrift{}, &stubStats{}, nil)
	rec := serveRequest(handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
