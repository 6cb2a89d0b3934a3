package packages

import (
	"context"
	"fmt"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// backend holds what every command-driven provider shares.
type backend struct {
	name       string
	executable string
	runner     process.Runner
	privileged bool
}

// Name implements engine.PackageProvider.
func (b *backend) Name() string {
	return b.name
}

// Available implements engine.PackageProvider.
func (b *backend) Available(_ context.Context) bool {
	_, err := b.runner.LookPath(b.executable)
	return err == nil
}

// run executes the backend with args.
func (b *backend) run(ctx context.Context, args ...string) (*process.Result, error) {
	return b.runner.Run(ctx, process.Command{
		Name:       b.executable,
		Args:       args,
		Privileged: b.privileged,
	})
}

// query executes a read-only backend command. Queries never need privileges.
func (b *backend) query(ctx context.Context, args ...string) (*process.Result, error) {
	return b.runner.Run(ctx, process.Command{
		Name: b.executable,
		Args: args,
	})
}

// notBootstrappable is the Bootstrap error for backends shipped with the OS.
func (b *backend) notBootstrappable() error {
	return fmt.Errorf("%s is not installed and cannot be bootstrapped", b.executable)
}

// requireRepository validates the variant carries a repository.
func requireRepository(variant *engine.PackageVariant) (*engine.Repository, error) {
	if variant == nil || variant.Repository == nil {
		return nil, fmt.Errorf("no repository declared")
	}
	if variant.Repository.Name == "" {
		return nil, fmt.Errorf("repository name is required")
	}
	return variant.Repository, nil
}

// installArgs appends the variant's packages to the backend's install flags.
func installArgs(variant *engine.PackageVariant, flags ...string) ([]string, error) {
	if variant == nil || len(variant.Packages) == 0 {
		return nil, fmt.Errorf("no packages to install")
	}
	args := make([]string, 0, len(flags)+len(variant.Packages))
	args = append(args, flags...)
	return append(args, variant.Packages...), nil
}
