// Package enginetest provides fake providers and registries for tests.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/homestead/pkg/engine"
)

// FakeProvider is a scripted engine.PackageProvider that records calls.
type FakeProvider struct {
	mu sync.Mutex

	ProviderName string

	// IsAvailable is reported by Available. A successful Bootstrap sets it.
	IsAvailable  bool
	BootstrapErr error

	// Repositories holds the registered repository names.
	Repositories     map[string]bool
	AddRepositoryErr error

	// IgnoreAdd makes AddRepository succeed without registering anything.
	IgnoreAdd bool

	InstallErr error

	calls     []string
	installed [][]string
}

// NewFakeProvider creates an available provider.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		ProviderName: name,
		IsAvailable:  true,
		Repositories: make(map[string]bool),
	}
}

func (f *FakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Name implements engine.PackageProvider.
func (f *FakeProvider) Name() string {
	return f.ProviderName
}

// Available implements engine.PackageProvider.
func (f *FakeProvider) Available(context.Context) bool {
	f.record("available")
	return f.IsAvailable
}

// Bootstrap implements engine.PackageProvider.
func (f *FakeProvider) Bootstrap(context.Context) error {
	f.record("bootstrap")
	if f.BootstrapErr != nil {
		return f.BootstrapErr
	}
	f.IsAvailable = true
	return nil
}

// HasRepository implements engine.PackageProvider.
func (f *FakeProvider) HasRepository(_ context.Context, variant *engine.PackageVariant) bool {
	f.record("has_repository")
	return variant.Repository != nil && f.Repositories[variant.Repository.Name]
}

// AddRepository implements engine.PackageProvider.
func (f *FakeProvider) AddRepository(_ context.Context, variant *engine.PackageVariant) error {
	f.record("add_repository")
	if f.AddRepositoryErr != nil {
		return f.AddRepositoryErr
	}
	if !f.IgnoreAdd {
		f.Repositories[variant.Repository.Name] = true
	}
	return nil
}

// Install implements engine.PackageProvider.
func (f *FakeProvider) Install(_ context.Context, variant *engine.PackageVariant) error {
	f.record("install")
	if f.InstallErr != nil {
		return f.InstallErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, append([]string(nil), variant.Packages...))
	return nil
}

// Calls returns the recorded call names in order.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Called reports whether the named call was made.
func (f *FakeProvider) Called(call string) bool {
	for _, c := range f.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

// Installed returns the package lists passed to successful installs.
func (f *FakeProvider) Installed() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.installed...)
}

// Registry is a map-backed engine.ProviderRegistry.
type Registry struct {
	Providers       map[string]engine.PackageProvider
	DefaultProvider string
}

// NewRegistry registers the providers; the first one is the default.
func NewRegistry(providers ...engine.PackageProvider) *Registry {
	r := &Registry{Providers: make(map[string]engine.PackageProvider)}
	for i, p := range providers {
		if i == 0 {
			r.DefaultProvider = p.Name()
		}
		r.Providers[p.Name()] = p
	}
	return r
}

// Get implements engine.ProviderRegistry.
func (r *Registry) Get(name string) (engine.PackageProvider, error) {
	if p, ok := r.Providers[name]; ok {
		return p, nil
	}
	return nil, engine.NewError(engine.KindUnknownProvider, fmt.Sprintf("unknown package provider %q", name), nil)
}

// Default implements engine.ProviderRegistry.
func (r *Registry) Default() (engine.PackageProvider, error) {
	if r.DefaultProvider == "" {
		return nil, engine.NewError(engine.KindNoDefaultProvider, "no default package provider", nil)
	}
	return r.Get(r.DefaultProvider)
}

// Names implements engine.ProviderRegistry.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Providers))
	for name := range r.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
