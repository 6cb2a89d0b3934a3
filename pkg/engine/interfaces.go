package engine

import (
	"context"
	"time"
)

// Recorder persists run history. Recording failures are logged by the
// driver and never change the outcome of a run.
type Recorder interface {
	// StartRun records that a run has begun.
	StartRun(ctx context.Context, report *Report) error

	// RecordAction records the outcome of one action.
	RecordAction(ctx context.Context, runID string, record ActionRecord) error

	// FinishRun records the final status of a run.
	FinishRun(ctx context.Context, report *Report) error
}

// MetricsSink receives execution measurements.
type MetricsSink interface {
	// RecordAction records one executed action.
	RecordAction(kind, mode, status string, duration time.Duration)

	// RecordRunCompleted records a completed run.
	RecordRunCompleted(mode, status string, duration time.Duration)
}

// noopMetrics discards every measurement.
type noopMetrics struct{}

func (noopMetrics) RecordAction(string, string, string, time.Duration) {}
func (noopMetrics) RecordRunCompleted(string, string, time.Duration) {}
