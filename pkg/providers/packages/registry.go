package packages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
	"github.com/openfroyo/homestead/pkg/telemetry"
	"github.com/openfroyo/homestead/pkg/vars"
)

// platformDefaults maps an OS family to its default provider.
var platformDefaults = map[string]string{
	"debian":              "aptitude",
	"ubuntu":              "aptitude",
	"linuxmint":           "aptitude",
	"pop":                 "aptitude",
	"fedora":              "dnf",
	"rhel":                "dnf",
	"centos":              "dnf",
	"rocky":               "dnf",
	"almalinux":           "dnf",
	"opensuse":            "zypper",
	"opensuse-leap":       "zypper",
	"opensuse-tumbleweed": "zypper",
	"suse":                "zypper",
	"sles":                "zypper",
	"arch":                "pacman",
	"manjaro":             "pacman",
	"endeavouros":         "pacman",
	"darwin":              "homebrew",
	"freebsd":             "bsdpkg",
	"windows":             "winget",
}

// providerAliases maps alternate names to registered providers.
var providerAliases = map[string]string{
	"apt":  "aptitude",
	"yum":  "dnf",
	"brew": "homebrew",
	"pkg":  "bsdpkg",
}

// Registry resolves package providers by name or by platform. It is
// populated once at startup; lookups are pure map reads.
type Registry struct {
	providers map[string]engine.PackageProvider
	aliases   map[string]string
	defaults  map[string]string
	platform  vars.Platform

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = telemetry.ComponentLogger(logger, "providers")
	}
}

// WithInstrumentation wraps every registered provider so its calls are
// counted, timed and traced.
func WithInstrumentation(metrics *telemetry.Metrics, tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.metrics = metrics
		r.tracer = tracer
	}
}

// NewRegistry creates a registry holding the built-in providers and the
// platform default table.
func NewRegistry(platform vars.Platform, runner process.Runner, opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]engine.PackageProvider),
		aliases:   make(map[string]string, len(providerAliases)),
		defaults:  make(map[string]string, len(platformDefaults)),
		platform:  platform,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for alias, name := range providerAliases {
		r.aliases[alias] = name
	}
	for family, name := range platformDefaults {
		r.defaults[family] = name
	}

	r.Register(NewAptitude(runner))
	r.Register(NewDNF(runner))
	r.Register(NewZypper(runner))
	r.Register(NewPacman(runner))
	r.Register(NewHomebrew(runner))
	r.Register(NewBSDPkg(runner))
	r.Register(NewWinget(runner))

	return r
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(provider engine.PackageProvider) {
	if r.metrics != nil || r.tracer != nil {
		provider = Instrument(provider, r.metrics, r.tracer)
	}
	r.providers[provider.Name()] = provider
	r.logger.Debug().Str("provider", provider.Name()).Msg("Registered package provider")
}

// Alias makes name resolvable as alias.
func (r *Registry) Alias(alias, name string) {
	r.aliases[alias] = name
}

// SetDefault sets the default provider for an OS family.
func (r *Registry) SetDefault(family, name string) {
	r.defaults[family] = name
}

// Get implements engine.ProviderRegistry.
func (r *Registry) Get(name string) (engine.PackageProvider, error) {
	key := strings.ToLower(name)
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	if p, ok := r.providers[key]; ok {
		return p, nil
	}
	return nil, engine.NewError(engine.KindUnknownProvider,
		fmt.Sprintf("unknown package provider %q", name), nil).WithProvider(name)
}

// Default implements engine.ProviderRegistry. The family is tried first,
// then its ID_LIKE parents, then the operating system.
func (r *Registry) Default() (engine.PackageProvider, error) {
	name := r.DefaultName()
	if name == "" {
		return nil, engine.NewError(engine.KindNoDefaultProvider,
			fmt.Sprintf("no default package provider for platform %s (%s)", r.platform.Family, r.platform.OS), nil)
	}
	return r.Get(name)
}

// DefaultName returns the name of the platform default provider, or "".
func (r *Registry) DefaultName() string {
	for _, candidate := range r.platform.Candidates() {
		if name, ok := r.defaults[candidate]; ok {
			return name
		}
	}
	return ""
}

// Names implements engine.ProviderRegistry.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the aliases that resolve to name, sorted.
func (r *Registry) Aliases(name string) []string {
	var aliases []string
	for alias, target := range r.aliases {
		if target == name {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// Platform returns the platform the registry resolves defaults for.
func (r *Registry) Platform() vars.Platform {
	return r.platform
}
