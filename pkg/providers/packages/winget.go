package packages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// Winget drives the Windows package manager.
type Winget struct {
	backend
}

// NewWinget creates the winget provider.
func NewWinget(runner process.Runner) *Winget {
	return &Winget{backend{name: "winget", executable: "winget", runner: runner}}
}

// Bootstrap implements engine.PackageProvider.
func (w *Winget) Bootstrap(ctx context.Context) error {
	if w.Available(ctx) {
		return nil
	}
	return w.notBootstrappable()
}

// HasRepository implements engine.PackageProvider.
func (w *Winget) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	repo, err := requireRepository(variant)
	if err != nil {
		return false
	}
	result, err := w.query(ctx, "source", "list")
	if err != nil {
		return false
	}
	return listsRepository(result.Stdout, repo.Name)
}

// AddRepository implements engine.PackageProvider.
func (w *Winget) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	repo, err := requireRepository(variant)
	if err != nil {
		return err
	}
	if repo.URL == "" {
		return fmt.Errorf("winget source %s requires a url", repo.Name)
	}
	_, err = w.run(ctx, "source", "add", "--name", repo.Name, "--arg", repo.URL, "--accept-source-agreements")
	return err
}

// Install implements engine.PackageProvider. winget installs one package
// per invocation. Packages winget already lists as installed are skipped,
// and the exit codes winget uses for "already installed" and "no
// applicable upgrade" count as success.
func (w *Winget) Install(ctx context.Context, variant *engine.PackageVariant) error {
	if variant == nil || len(variant.Packages) == 0 {
		return fmt.Errorf("no packages to install")
	}
	for _, pkg := range variant.Packages {
		if w.installed(ctx, pkg) {
			continue
		}
		args := []string{"install", "--silent", "--accept-package-agreements", "--accept-source-agreements", "--exact", "--id", pkg}
		if _, err := w.runner.Run(ctx, process.Command{Name: w.executable, Args: args}); err != nil && !wingetNoop(err) {
			return err
		}
	}
	return nil
}

func (w *Winget) installed(ctx context.Context, pkg string) bool {
	result, err := w.query(ctx, "list", "--exact", "--id", pkg, "--accept-source-agreements")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(result.Stdout), strings.ToLower(pkg))
}

const (
	wingetUpdateNotApplicable uint32 = 0x8A15002B
	wingetAlreadyInstalled    uint32 = 0x8A150061
)

// wingetNoop reports whether an install failure only means there was
// nothing to do. winget exit codes are HRESULTs and show up either as
// unsigned or as negative values depending on how they were read.
func wingetNoop(err error) bool {
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	switch uint32(int32(exitErr.ExitCode)) {
	case wingetUpdateNotApplicable, wingetAlreadyInstalled:
		return true
	default:
		return false
	}
}
