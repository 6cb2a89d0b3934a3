package packages

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

const (
	aptKeyringDir  = "/etc/apt/keyrings"
	aptSourcesList = "/etc/apt/sources.list"
	aptSourcesDir  = "/etc/apt/sources.list.d"
)

// Aptitude drives apt on Debian-family systems.
type Aptitude struct {
	backend
}

// NewAptitude creates the aptitude provider.
func NewAptitude(runner process.Runner) *Aptitude {
	return &Aptitude{backend{name: "aptitude", executable: "apt-get", runner: runner, privileged: true}}
}

// Bootstrap implements engine.PackageProvider. apt ships with the
// distribution and cannot be installed by Homestead.
func (a *Aptitude) Bootstrap(ctx context.Context) error {
	if a.Available(ctx) {
		return nil
	}
	return a.notBootstrappable()
}

// HasRepository implements engine.PackageProvider by searching the apt
// source lists for the repository.
func (a *Aptitude) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	repo, err := requireRepository(variant)
	if err != nil {
		return false
	}
	_, err = a.runner.Run(ctx, process.Command{
		Name: "grep",
		Args: []string{"-rqsF", aptSourceNeedle(repo), aptSourcesList, aptSourcesDir},
	})
	return err == nil
}

// AddRepository implements engine.PackageProvider. PPAs and keyless
// repositories go through add-apt-repository; keyed repositories get
// their key stored under /etc/apt/keyrings and a signed-by source entry.
// A key whose fingerprint does not match the declared one is removed again
// and the source entry is never written.
func (a *Aptitude) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	repo, err := requireRepository(variant)
	if err != nil {
		return err
	}

	if repo.Key == nil || strings.HasPrefix(repo.Name, "ppa:") {
		source := repo.Name
		if repo.URL != "" && !strings.HasPrefix(repo.Name, "ppa:") {
			source = repo.URL
		}
		if _, err := a.runner.Run(ctx, process.Command{
			Name:       "add-apt-repository",
			Args:       []string{"-y", source},
			Privileged: true,
		}); err != nil {
			return err
		}
	} else {
		if repo.URL == "" {
			return fmt.Errorf("repository %s declares a key but no url", repo.Name)
		}
		keyring := aptKeyringPath(repo)
		if _, err := a.runner.Run(ctx, process.Command{
			Name:       "install",
			Args:       []string{"-d", "-m", "0755", aptKeyringDir},
			Privileged: true,
		}); err != nil {
			return err
		}
		if _, err := a.runner.Run(ctx, process.Command{
			Name:       "curl",
			Args:       []string{"-fsSL", "-o", keyring, repo.Key.URL},
			Privileged: true,
		}); err != nil {
			return fmt.Errorf("failed to download key for %s: %w", repo.Name, err)
		}
		if err := verifyKey(ctx, a.runner, keyring, repo); err != nil {
			return discardKey(ctx, a.runner, keyring, err)
		}
		if _, err := a.runner.Run(ctx, process.Command{
			Name:       "tee",
			Args:       []string{path.Join(aptSourcesDir, sanitizeName(repo.Name)+".list")},
			Stdin:      fmt.Sprintf("deb [signed-by=%s] %s\n", keyring, repo.URL),
			Privileged: true,
		}); err != nil {
			return err
		}
	}

	_, err = a.run(ctx, "update")
	return err
}

// Install implements engine.PackageProvider.
func (a *Aptitude) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "install", "-y", "--no-install-recommends")
	if err != nil {
		return err
	}
	_, err = a.runner.Run(ctx, process.Command{
		Name:       a.executable,
		Args:       args,
		Env:        []string{"DEBIAN_FRONTEND=noninteractive"},
		Privileged: true,
	})
	return err
}

// aptSourceNeedle returns the text a registered repository leaves in the
// source lists. PPAs are recorded by their launchpad path.
func aptSourceNeedle(repo *engine.Repository) string {
	if ppa, ok := strings.CutPrefix(repo.Name, "ppa:"); ok {
		return ppa
	}
	if repo.URL != "" {
		return repo.URL
	}
	return repo.Name
}

func aptKeyringPath(repo *engine.Repository) string {
	name := repo.Name
	if repo.Key != nil && repo.Key.Name != "" {
		name = repo.Key.Name
	}
	return path.Join(aptKeyringDir, sanitizeName(name)+".asc")
}

// sanitizeName makes a repository name safe to use as a file name.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
