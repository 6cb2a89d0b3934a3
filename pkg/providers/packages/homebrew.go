package packages

import (
	"context"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// HomebrewInstallScript is the official Homebrew installer.
const HomebrewInstallScript = "https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh"

// Homebrew drives brew. Repositories are taps.
type Homebrew struct {
	backend
}

// NewHomebrew creates the homebrew provider. brew refuses to run as root,
// so its commands are never privileged.
func NewHomebrew(runner process.Runner) *Homebrew {
	return &Homebrew{backend{name: "homebrew", executable: "brew", runner: runner}}
}

// Bootstrap implements engine.PackageProvider by running the official
// install script non-interactively.
func (h *Homebrew) Bootstrap(ctx context.Context) error {
	if h.Available(ctx) {
		return nil
	}
	_, err := h.runner.Run(ctx, process.Command{
		Name: "bash",
		Args: []string{"-c", `/bin/bash -c "$(curl -fsSL ` + HomebrewInstallScript + `)"`},
		Env:  []string{"NONINTERACTIVE=1"},
	})
	return err
}

// HasRepository implements engine.PackageProvider.
func (h *Homebrew) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	repo, err := requireRepository(variant)
	if err != nil {
		return false
	}
	result, err := h.query(ctx, "tap")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), repo.Name) {
			return true
		}
	}
	return false
}

// AddRepository implements engine.PackageProvider.
func (h *Homebrew) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	repo, err := requireRepository(variant)
	if err != nil {
		return err
	}
	args := []string{"tap", repo.Name}
	if repo.URL != "" {
		args = append(args, repo.URL)
	}
	_, err = h.run(ctx, args...)
	return err
}

// Install implements engine.PackageProvider.
func (h *Homebrew) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "install")
	if err != nil {
		return err
	}
	_, err = h.runner.Run(ctx, process.Command{
		Name: h.executable,
		Args: args,
		Env:  []string{"HOMEBREW_NO_AUTO_UPDATE=1"},
	})
	return err
}
