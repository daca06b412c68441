// Package observer defines metrics hooks for sandbox execution and grading.
package observer

import (
	"context"
	"time"
)

// Run outcomes reported to ObserveRun.
const (
	OutcomeOK      = "ok"
	OutcomeNonZero = "nonzero_exit"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// MetricsRecorder records sandbox and grading metrics.
type MetricsRecorder interface {
	ObserveRun(ctx context.Context, outcome string, duration time.Duration)
	ObserveGrade(ctx context.Context, questionType string, score float64, duration time.Duration)
}

// NoopMetricsRecorder discards all observations.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveRun(context.Context, string, time.Duration) {}

func (NoopMetricsRecorder) ObserveGrade(context.Context, string, float64, time.Duration) {}
