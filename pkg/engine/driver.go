package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/homestead/pkg/process"
	"github.com/openfroyo/homestead/pkg/telemetry"
	"github.com/openfroyo/homestead/pkg/vars"
)

// Driver walks ordered manifests and executes their actions sequentially.
// Manifests never run concurrently: providers manage shared host state
// (package manager locks) and are not reentrant.
type Driver struct {
	// providers resolves package providers for actions
	providers ProviderRegistry

	// runner invokes external processes for actions
	runner process.Runner

	logger   zerolog.Logger
	tracer   trace.Tracer
	metrics  MetricsSink
	recorder Recorder

	// continueOnError keeps executing after a failed action
	continueOnError bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger zerolog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithTracer sets the tracer used for run and action spans.
func WithTracer(tracer trace.Tracer) DriverOption {
	return func(d *Driver) {
		d.tracer = tracer
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics MetricsSink) DriverOption {
	return func(d *Driver) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithRecorder sets the run history recorder.
func WithRecorder(recorder Recorder) DriverOption {
	return func(d *Driver) {
		d.recorder = recorder
	}
}

// WithContinueOnError sets the continuation policy. When false (the
// default) the run aborts at the first failed action.
func WithContinueOnError(continueOnError bool) DriverOption {
	return func(d *Driver) {
		d.continueOnError = continueOnError
	}
}

// NewDriver creates an execution driver.
func NewDriver(providers ProviderRegistry, runner process.Runner, opts ...DriverOption) *Driver {
	d := &Driver{
		providers: providers,
		runner:    runner,
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer("github.com/openfroyo/homestead/pkg/engine"),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs every action of the ordered manifests in the given mode.
// The manifests must already be in dependency order. Each action is invoked
// at most once. The returned report always contains the records of every
// action attempted; a non-nil error is a *RunError describing the failures.
func (d *Driver) Execute(ctx context.Context, ordered []*Manifest, base *vars.Context, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.New().String(),
		Mode:      mode,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Records:   make([]ActionRecord, 0),
	}

	ctx, span := d.tracer.Start(ctx, "run.execute", trace.WithAttributes(
		telemetry.AttrRunID.String(report.RunID),
		telemetry.AttrRunMode.String(mode.String()),
	))
	defer span.End()

	logger := d.logger.With().Str("run_id", report.RunID).Str("mode", mode.String()).Logger()
	logger.Info().Int("manifests", len(ordered)).Msg("Starting run")

	if d.recorder != nil {
		if err := d.recorder.StartRun(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run start")
		}
	}

	total := 0
	for _, m := range ordered {
		total += len(m.Actions)
	}

	seen := make(map[string]bool, len(ordered))
	aborted := false

manifests:
	for _, m := range ordered {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true

		rc := &RunContext{
			Vars:      base.WithLocal(m.Variables),
			Providers: d.providers,
			Runner:    d.runner,
			Tracer:    d.tracer,
			Logger:    logger.With().Str("manifest", m.Name).Logger(),
		}

		rc.Logger.Info().Int("actions", len(m.Actions)).Msg("Executing manifest")

		for i, action := range m.Actions {
			rec := d.executeAction(ctx, m, i, action, rc, mode)
			report.Records = append(report.Records, rec)

			if d.recorder != nil {
				if err := d.recorder.RecordAction(ctx, report.RunID, rec); err != nil {
					logger.Warn().Err(err).Msg("Failed to record action result")
				}
			}

			if rec.Failed() && !d.continueOnError {
				aborted = true
				break manifests
			}
		}
	}

	report.CompletedAt = time.Now()
	report.Pending = total - len(report.Records)
	report.Status = finalStatus(report, aborted)

	span.SetAttributes(telemetry.AttrRunStatus.String(string(report.Status)))
	d.metrics.RecordRunCompleted(mode.String(), string(report.Status), report.Duration())

	if d.recorder != nil {
		if err := d.recorder.FinishRun(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run completion")
		}
	}

	failures := report.Failures()
	logger.Info().
		Str("status", string(report.Status)).
		Int("executed", len(report.Records)).
		Int("failed", len(failures)).
		Int("pending", report.Pending).
		Dur("duration", report.Duration()).
		Msg("Run finished")

	if len(failures) > 0 {
		runErr := &RunError{Mode: mode, Failures: failures, Aborted: aborted}
		telemetry.RecordError(span, runErr)
		return report, runErr
	}

	telemetry.RecordSuccess(span)
	return report, nil
}

// executeAction invokes exactly one of DryRun or Run and records the outcome.
func (d *Driver) executeAction(
	ctx context.Context,
	m *Manifest,
	index int,
	action Action,
	rc *RunContext,
	mode Mode,
) ActionRecord {
	start := time.Now()

	ctx, span := telemetry.StartActionSpan(ctx, d.tracer, mode.String(), m.Name, index, action.Kind())
	defer span.End()

	var (
		result *ActionResult
		err    error
	)
	switch mode {
	case ModeDryRun:
		result, err = action.DryRun(ctx, m, rc)
	default:
		result, err = action.Run(ctx, m, rc)
	}

	rec := ActionRecord{
		Manifest: m.Name,
		Index:    index,
		Kind:     action.Kind(),
		Duration: time.Since(start),
	}

	if err != nil {
		rec.Err = Enrich(err, m.Name, index)
		telemetry.RecordError(span, rec.Err)
		rc.Logger.Error().
			Err(rec.Err).
			Int("action", index).
			Str("kind", rec.Kind).
			Str("error_kind", string(KindOf(rec.Err))).
			Msg("Action failed")
	} else {
		if result != nil {
			rec.Message = result.Message
		}
		span.SetAttributes(attribute.String("action.message", rec.Message))
		telemetry.RecordSuccess(span)
		rc.Logger.Info().
			Int("action", index).
			Str("kind", rec.Kind).
			Msg(rec.Message)
	}

	d.metrics.RecordAction(rec.Kind, mode.String(), string(rec.Status()), rec.Duration)
	return rec
}

// finalStatus derives the run status from its records.
func finalStatus(report *Report, aborted bool) RunStatus {
	failed := len(report.Failures())
	succeeded := len(report.Records) - failed

	switch {
	case failed == 0:
		return RunStatusSucceeded
	case aborted || succeeded == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// RunError reports the failed actions of a run.
type RunError struct {
	// Mode is the mode the run executed in.
	Mode Mode

	// Failures are the failed action records, in execution order.
	Failures []ActionRecord

	// Aborted is true when the run stopped at the first failure.
	Aborted bool
}

// Error implements the error interface.
func (e *RunError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s[%d] %s: %v", f.Manifest, f.Index, f.Kind, f.Err))
	}
	verb := "completed with"
	if e.Aborted {
		verb = "aborted after"
	}
	return fmt.Sprintf("%s %s %d failed action(s): %s", e.Mode, verb, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure for errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
