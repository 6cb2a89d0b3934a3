package actions

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/telemetry"
)

// PackageRepository registers a package repository without installing.
type PackageRepository struct {
	engine.Repository `yaml:",inline"`

	// Provider pins a provider by name; empty selects the platform default.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// Kind implements engine.Action.
func (a *PackageRepository) Kind() string {
	return KindPackageRepository
}

// Describe implements engine.Action.
func (a *PackageRepository) Describe() string {
	return "add repository " + a.Name
}

// DryRun implements engine.Action. Checking for the repository is a query
// and does not change the host.
func (a *PackageRepository) DryRun(ctx context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	variant, err := resolveVariant(rc, nil, a.Provider, &a.Repository)
	if err != nil {
		return nil, err
	}
	if variant.Provider.Available(ctx) && variant.Provider.HasRepository(ctx, variant) {
		return &engine.ActionResult{Message: fmt.Sprintf("Repository %s already present", variant.Repository.Name)}, nil
	}
	return &engine.ActionResult{
		Message: fmt.Sprintf("Add repository %s to %s", variant.Repository.Name, variant.Provider.Name()),
	}, nil
}

// Run implements engine.Action.
func (a *PackageRepository) Run(ctx context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	variant, err := resolveVariant(rc, nil, a.Provider, &a.Repository)
	if err != nil {
		return nil, err
	}
	provider := variant.Provider

	ctx, span := tracer(rc).Start(ctx, "package.repository", trace.WithAttributes(
		telemetry.AttrProviderName.String(provider.Name()),
	))
	defer span.End()

	if err := ensureProvider(ctx, provider); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	added, err := ensureRepository(ctx, variant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.RecordSuccess(span)
	if !added {
		return &engine.ActionResult{Message: fmt.Sprintf("Repository %s already present", variant.Repository.Name)}, nil
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Repository %s added", variant.Repository.Name)}, nil
}
