package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Telemetry bundles the logger, tracer and metrics of one invocation.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans and writes the metrics textfile when one is configured.
// Both steps are attempted; their errors are joined.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.Config != nil && t.Config.Metrics.TextfilePath != "" {
		if err := t.Metrics.WriteTextfile(t.Config.Metrics.TextfilePath); err != nil {
			errs = append(errs, err)
		}
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
