package drift

import (
	"context"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Job binds a detector to its configured feature and the fixed training-time
// reference distribution, giving scheduled triggers a zero-argument entry point.
type Job struct {
	detector  *Detector
	feature   string
	reference []float64
}

// NewJob creates a runnable drift check for one feature
func NewJob(detector *Detector, feature string, reference *Reference) *Job {
	return &Job{
		detector:  detector,
		feature:   feature,
		reference: reference.Distribution(),
	}
}

// Run executes one drift check
func (j *Job) Run(ctx context.Context) *models.DriftReport {
	return j.detector.Detect(ctx, j.feature, j.reference)
}

// Latest returns the cached most recent report
func (j *Job) Latest() *models.DriftReport {
	return j.detector.Latest()
}
