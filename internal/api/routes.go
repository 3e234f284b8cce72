package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Drift monitoring
	api.HandleFunc("/drift", handler.GetDriftStatus).Methods("GET")
	api.HandleFunc("/drift/run", handler.RunDriftCheck).Methods("POST")

	// Performance and diagnostics
	api.HandleFunc("/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/performance/reconcile", handler.ReconcilePerformance).Methods("POST")
	api.HandleFunc("/diagnostic", handler.GetDiagnostic).Methods("GET")
	api.HandleFunc("/metrics/daily", handler.GetDailyMetric).Methods("GET")

	// Prediction ledger
	api.HandleFunc("/predictions", handler.RecordPrediction).Methods("POST")
	api.HandleFunc("/predictions", handler.ListPredictions).Methods("GET")
	api.HandleFunc("/predictions/{id}/validate", handler.ValidatePrediction).Methods("POST")

	return r
}
