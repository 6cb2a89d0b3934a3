package engine

import (
	"context"
	"strings"
)

// PackageProvider is the capability surface every package-manager backend
// implements. Providers are stateless with respect to manifests and may be
// reused across actions, but they manage shared host state and are never
// called concurrently.
type PackageProvider interface {
	// Name returns the stable identifier used in logs and messages.
	Name() string

	// Available reports whether the backend's executable is present.
	Available(ctx context.Context) bool

	// Bootstrap installs or initialises the backend itself. It must be idempotent.
	Bootstrap(ctx context.Context) error

	// HasRepository reports whether the variant's repository is already registered.
	HasRepository(ctx context.Context, variant *PackageVariant) bool

	// AddRepository registers the variant's repository.
	AddRepository(ctx context.Context, variant *PackageVariant) error

	// Install installs the variant's packages. It must be safe to call when
	// some or all packages are already installed.
	Install(ctx context.Context, variant *PackageVariant) error
}

// ProviderRegistry resolves providers by name or by platform.
type ProviderRegistry interface {
	// Get returns the provider registered under name.
	// Fails with KindUnknownProvider when none is registered.
	Get(name string) (PackageProvider, error)

	// Default returns the platform-default provider.
	// Fails with KindNoDefaultProvider when the platform has none.
	Default() (PackageProvider, error)

	// Names returns the registered provider names, sorted.
	Names() []string
}

// Repository describes an extra package source.
type Repository struct {
	// Name identifies the repository (PPA, tap, repo id).
	Name string `yaml:"name" json:"name" validate:"required"`

	// URL is the repository location for providers that need one.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Key is the optional signing key for the repository.
	Key *RepositoryKey `yaml:"key,omitempty" json:"key,omitempty"`
}

// RepositoryKey describes a repository signing key.
type RepositoryKey struct {
	// Name is the file name the key is stored under.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// URL is where the key is downloaded from.
	URL string `yaml:"url" json:"url" validate:"required"`

	// Fingerprint optionally pins the key.
	Fingerprint string `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
}

// PackageVariant is the resolved, provider-bound view of a package action.
// It is recomputed on every dry-run and run so provider resolution always
// reflects the current registry.
type PackageVariant struct {
	// Packages are the rendered package names to install.
	Packages []string

	// Provider is the resolved backend.
	Provider PackageProvider

	// Repository is the optional extra source the packages come from.
	Repository *Repository
}

// PackageList renders the package names for messages.
func (v *PackageVariant) PackageList() string {
	return strings.Join(v.Packages, ", ")
}

// ResolveProvider selects a provider: the pinned one when name is set,
// otherwise the registry's platform default.
func ResolveProvider(registry ProviderRegistry, name string) (PackageProvider, error) {
	if name != "" {
		return registry.Get(name)
	}
	return registry.Default()
}
