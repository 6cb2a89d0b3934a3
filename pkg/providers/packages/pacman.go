package packages

import (
	"context"
	"fmt"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// Pacman drives pacman on Arch-family systems.
type Pacman struct {
	backend
}

// NewPacman creates the pacman provider.
func NewPacman(runner process.Runner) *Pacman {
	return &Pacman{backend{name: "pacman", executable: "pacman", runner: runner, privileged: true}}
}

// Bootstrap implements engine.PackageProvider.
func (p *Pacman) Bootstrap(ctx context.Context) error {
	if p.Available(ctx) {
		return nil
	}
	return p.notBootstrappable()
}

// HasRepository implements engine.PackageProvider. pacman repositories are
// managed in pacman.conf, outside Homestead.
func (p *Pacman) HasRepository(context.Context, *engine.PackageVariant) bool {
	return false
}

// AddRepository implements engine.PackageProvider.
func (p *Pacman) AddRepository(_ context.Context, variant *engine.PackageVariant) error {
	name := ""
	if variant != nil && variant.Repository != nil {
		name = variant.Repository.Name
	}
	return fmt.Errorf("pacman does not support adding repository %q; edit pacman.conf instead", name)
}

// Install implements engine.PackageProvider.
func (p *Pacman) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "-S", "--noconfirm", "--needed")
	if err != nil {
		return err
	}
	_, err = p.run(ctx, args...)
	return err
}
