package actions

import (
	"context"
	"fmt"

	"github.com/openfroyo/homestead/pkg/engine"
)

// resolveVariant renders the package fields and binds them to a provider.
// It never calls the provider and is recomputed on every invocation.
func resolveVariant(rc *engine.RunContext, packages []string, provider string, repo *engine.Repository) (*engine.PackageVariant, error) {
	names, err := renderAll(rc, packages)
	if err != nil {
		return nil, err
	}

	providerName, err := render(rc, provider)
	if err != nil {
		return nil, err
	}
	p, err := engine.ResolveProvider(rc.Providers, providerName)
	if err != nil {
		return nil, err
	}

	variant := &engine.PackageVariant{Packages: names, Provider: p}
	if repo != nil {
		variant.Repository, err = renderRepository(rc, repo)
		if err != nil {
			return nil, err
		}
	}
	return variant, nil
}

func renderRepository(rc *engine.RunContext, repo *engine.Repository) (*engine.Repository, error) {
	fields, err := renderAll(rc, []string{repo.Name, repo.URL})
	if err != nil {
		return nil, err
	}
	out := &engine.Repository{Name: fields[0], URL: fields[1]}

	if repo.Key != nil {
		keyFields, err := renderAll(rc, []string{repo.Key.Name, repo.Key.URL, repo.Key.Fingerprint})
		if err != nil {
			return nil, err
		}
		out.Key = &engine.RepositoryKey{Name: keyFields[0], URL: keyFields[1], Fingerprint: keyFields[2]}
	}
	return out, nil
}

// ensureProvider bootstraps the provider when its backend is missing.
func ensureProvider(ctx context.Context, p engine.PackageProvider) error {
	if p.Available(ctx) {
		return nil
	}
	if err := p.Bootstrap(ctx); err != nil {
		return engine.NewError(engine.KindProviderUnavailable, "provider unavailable", err).
			WithProvider(p.Name()).
			WithStep("bootstrap")
	}
	return nil
}

// ensureRepository registers the variant's repository when it is missing
// and verifies the registration took effect. It reports whether the
// repository was added.
func ensureRepository(ctx context.Context, variant *engine.PackageVariant) (bool, error) {
	repo := variant.Repository
	if repo == nil {
		return false, nil
	}

	p := variant.Provider
	if p.HasRepository(ctx, variant) {
		return false, nil
	}

	if err := p.AddRepository(ctx, variant); err != nil {
		return false, engine.NewError(engine.KindRepository,
			fmt.Sprintf("failed to add repository %s", repo.Name), err).
			WithProvider(p.Name()).
			WithStep("repository")
	}

	if !p.HasRepository(ctx, variant) {
		return false, engine.NewError(engine.KindRepository,
			fmt.Sprintf("repository %s is still missing after it was added", repo.Name), nil).
			WithProvider(p.Name()).
			WithStep("repository")
	}
	return true, nil
}
