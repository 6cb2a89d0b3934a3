package packages

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/telemetry"
)

// instrumented decorates a provider with metrics and spans per call.
type instrumented struct {
	provider engine.PackageProvider
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// Instrument wraps provider so every call records provider metrics and a
// "provider.<operation>" span. A nil tracer disables spans.
func Instrument(provider engine.PackageProvider, metrics *telemetry.Metrics, tracer trace.Tracer) engine.PackageProvider {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &instrumented{provider: provider, metrics: metrics, tracer: tracer}
}

func (i *instrumented) Name() string {
	return i.provider.Name()
}

func (i *instrumented) Available(ctx context.Context) bool {
	var available bool
	_ = i.observe(ctx, "available", nil, func(ctx context.Context) error {
		available = i.provider.Available(ctx)
		return nil
	})
	return available
}

func (i *instrumented) Bootstrap(ctx context.Context) error {
	return i.observe(ctx, "bootstrap", nil, i.provider.Bootstrap)
}

func (i *instrumented) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	var present bool
	_ = i.observe(ctx, "has_repository", variant, func(ctx context.Context) error {
		present = i.provider.HasRepository(ctx, variant)
		return nil
	})
	return present
}

func (i *instrumented) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	return i.observe(ctx, "add_repository", variant, func(ctx context.Context) error {
		return i.provider.AddRepository(ctx, variant)
	})
}

func (i *instrumented) Install(ctx context.Context, variant *engine.PackageVariant) error {
	return i.observe(ctx, "install", variant, func(ctx context.Context) error {
		return i.provider.Install(ctx, variant)
	})
}

func (i *instrumented) observe(ctx context.Context, op string, variant *engine.PackageVariant, fn func(context.Context) error) error {
	ctx, span := i.tracer.Start(ctx, "provider."+op, trace.WithAttributes(
		telemetry.AttrProviderName.String(i.provider.Name()),
		telemetry.AttrProviderOp.String(op),
	))
	defer span.End()
	if variant != nil {
		span.SetAttributes(telemetry.AttrPackages.StringSlice(variant.Packages))
	}

	start := time.Now()
	err := fn(ctx)
	i.metrics.RecordProviderCall(i.provider.Name(), op, time.Since(start))

	if err != nil {
		i.metrics.RecordProviderError(i.provider.Name(), op)
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	return nil
}

// Unwrap returns the decorated provider.
func (i *instrumented) Unwrap() engine.PackageProvider {
	return i.provider
}
