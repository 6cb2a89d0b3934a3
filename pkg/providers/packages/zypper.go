package packages

import (
	"context"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// Zypper drives zypper on openSUSE and SLES.
type Zypper struct {
	backend
}

// NewZypper creates the zypper provider.
func NewZypper(runner process.Runner) *Zypper {
	return &Zypper{backend{name: "zypper", executable: "zypper", runner: runner, privileged: true}}
}

// Bootstrap implements engine.PackageProvider.
func (z *Zypper) Bootstrap(ctx context.Context) error {
	if z.Available(ctx) {
		return nil
	}
	return z.notBootstrappable()
}

// HasRepository implements engine.PackageProvider.
func (z *Zypper) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	repo, err := requireRepository(variant)
	if err != nil {
		return false
	}
	result, err := z.query(ctx, "repos")
	if err != nil {
		return false
	}
	return listsRepository(result.Stdout, repo.Name)
}

// AddRepository implements engine.PackageProvider.
func (z *Zypper) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	repo, err := requireRepository(variant)
	if err != nil {
		return err
	}
	if repo.Key != nil {
		if err := importRPMKey(ctx, z.runner, repo); err != nil {
			return err
		}
	}
	if _, err := z.run(ctx, "--non-interactive", "addrepo", "--refresh", repo.URL, repo.Name); err != nil {
		return err
	}
	_, err = z.run(ctx, "--non-interactive", "--gpg-auto-import-keys", "refresh", repo.Name)
	return err
}

// Install implements engine.PackageProvider.
func (z *Zypper) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "--non-interactive", "install")
	if err != nil {
		return err
	}
	_, err = z.run(ctx, args...)
	return err
}
