package packages

import (
	"context"
	"fmt"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// BSDPkg drives pkg on FreeBSD.
type BSDPkg struct {
	backend
}

// NewBSDPkg creates the bsdpkg provider.
func NewBSDPkg(runner process.Runner) *BSDPkg {
	return &BSDPkg{backend{name: "bsdpkg", executable: "pkg", runner: runner, privileged: true}}
}

// Bootstrap implements engine.PackageProvider. The base system ships a pkg
// stub that installs the real package manager.
func (b *BSDPkg) Bootstrap(ctx context.Context) error {
	_, err := b.run(ctx, "bootstrap", "-y")
	return err
}

// Available implements engine.PackageProvider. The pkg stub is always on
// PATH, so availability is decided by whether pkg answers a query.
func (b *BSDPkg) Available(ctx context.Context) bool {
	if !b.backend.Available(ctx) {
		return false
	}
	_, err := b.query(ctx, "-N")
	return err == nil
}

// HasRepository implements engine.PackageProvider.
func (b *BSDPkg) HasRepository(context.Context, *engine.PackageVariant) bool {
	return false
}

// AddRepository implements engine.PackageProvider.
func (b *BSDPkg) AddRepository(_ context.Context, variant *engine.PackageVariant) error {
	name := ""
	if variant != nil && variant.Repository != nil {
		name = variant.Repository.Name
	}
	return fmt.Errorf("bsdpkg does not support adding repository %q", name)
}

// Install implements engine.PackageProvider.
func (b *BSDPkg) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "install", "-y")
	if err != nil {
		return err
	}
	_, err = b.run(ctx, args...)
	return err
}
