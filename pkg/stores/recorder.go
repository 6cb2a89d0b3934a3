package stores

import (
	"context"
	"time"

	"github.com/openfroyo/homestead/pkg/engine"
)

// Recorder adapts a Store to the driver's engine.Recorder.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// StartRun implements engine.Recorder.
func (r *Recorder) StartRun(ctx context.Context, report *engine.Report) error {
	return r.store.CreateRun(ctx, &Run{
		ID:        report.RunID,
		Mode:      report.Mode.String(),
		Status:    string(report.Status),
		StartedAt: report.StartedAt,
	})
}

// RecordAction implements engine.Recorder.
func (r *Recorder) RecordAction(ctx context.Context, runID string, record engine.ActionRecord) error {
	result := &ActionResult{
		RunID:     runID,
		Manifest:  record.Manifest,
		Index:     record.Index,
		Kind:      record.Kind,
		Message:   record.Message,
		Duration:  record.Duration,
		CreatedAt: time.Now(),
	}
	if record.Err != nil {
		msg := record.Err.Error()
		result.Error = &msg
	}
	return r.store.RecordAction(ctx, result)
}

// FinishRun implements engine.Recorder.
func (r *Recorder) FinishRun(ctx context.Context, report *engine.Report) error {
	completed := report.CompletedAt
	failures := report.Failures()
	run := &Run{
		ID:          report.RunID,
		Status:      string(report.Status),
		CompletedAt: &completed,
		Executed:    len(report.Records),
		Failed:      len(failures),
		Pending:     report.Pending,
	}
	if len(failures) > 0 {
		msg := failures[0].Err.Error()
		run.Error = &msg
	}
	return r.store.CompleteRun(ctx, run)
}
