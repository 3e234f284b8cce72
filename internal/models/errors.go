package models

import "errors"

var (
	// ErrDataUnavailable means every market-data acquisition strategy failed.
	// Callers must degrade, never fabricate data.
	ErrDataUnavailable = errors.New("market data unavailable from all sources")

	// ErrBackendUnreachable means one prediction store backend is down and
	// the store is operating in degraded mode.
	ErrBackendUnreachable = errors.New("storage backend unreachable")

	// ErrInconsistentValidation means a prediction was validated twice with
	// different ground-truth values.
	ErrInconsistentValidation = errors.New("prediction already validated with a different actual value")

	// ErrPredictionNotFound means no prediction exists for the given id.
	ErrPredictionNotFound = errors.New("prediction not found")
)
