package packages

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

const dnfReposDir = "/etc/yum.repos.d"

// DNF drives dnf on Fedora and Enterprise Linux systems.
type DNF struct {
	backend
}

// NewDNF creates the dnf provider.
func NewDNF(runner process.Runner) *DNF {
	return &DNF{backend{name: "dnf", executable: "dnf", runner: runner, privileged: true}}
}

// Bootstrap implements engine.PackageProvider.
func (d *DNF) Bootstrap(ctx context.Context) error {
	if d.Available(ctx) {
		return nil
	}
	return d.notBootstrappable()
}

// HasRepository implements engine.PackageProvider.
func (d *DNF) HasRepository(ctx context.Context, variant *engine.PackageVariant) bool {
	repo, err := requireRepository(variant)
	if err != nil {
		return false
	}
	result, err := d.query(ctx, "repolist", "--all")
	if err != nil {
		return false
	}
	return listsRepository(result.Stdout, repo.Name)
}

// AddRepository implements engine.PackageProvider. A url ending in .repo
// is handed to config-manager and must define a repository whose id is
// the declared name. Any other url is a baseurl: Homestead writes the
// .repo file itself with the declared name as the id, so HasRepository
// finds it on the next run.
func (d *DNF) AddRepository(ctx context.Context, variant *engine.PackageVariant) error {
	repo, err := requireRepository(variant)
	if err != nil {
		return err
	}
	if repo.Key != nil {
		if err := importRPMKey(ctx, d.runner, repo); err != nil {
			return err
		}
	}
	if repo.URL == "" || strings.HasSuffix(repo.URL, ".repo") {
		source := repo.URL
		if source == "" {
			source = repo.Name
		}
		_, err = d.run(ctx, "config-manager", "--add-repo", source)
		return err
	}
	_, err = d.runner.Run(ctx, process.Command{
		Name:       "tee",
		Args:       []string{dnfRepoFile(repo)},
		Stdin:      dnfRepoDefinition(repo),
		Privileged: true,
	})
	return err
}

func dnfRepoFile(repo *engine.Repository) string {
	return path.Join(dnfReposDir, sanitizeName(repo.Name)+".repo")
}

// dnfRepoDefinition renders a yum repository section for a baseurl.
func dnfRepoDefinition(repo *engine.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", repo.Name)
	fmt.Fprintf(&b, "name=%s\n", repo.Name)
	fmt.Fprintf(&b, "baseurl=%s\n", repo.URL)
	b.WriteString("enabled=1\n")
	if repo.Key != nil {
		b.WriteString("gpgcheck=1\n")
		fmt.Fprintf(&b, "gpgkey=%s\n", repo.Key.URL)
	} else {
		b.WriteString("gpgcheck=0\n")
	}
	return b.String()
}

// Install implements engine.PackageProvider.
func (d *DNF) Install(ctx context.Context, variant *engine.PackageVariant) error {
	args, err := installArgs(variant, "install", "-y")
	if err != nil {
		return err
	}
	_, err = d.run(ctx, args...)
	return err
}

// listsRepository reports whether a repository listing names the repository
// in its first column.
func listsRepository(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(strings.ReplaceAll(line, "|", " "))
		for _, f := range fields {
			if f == name {
				return true
			}
		}
	}
	return false
}
