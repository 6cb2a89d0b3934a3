package actions

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/telemetry"
)

// InstallSucceeded is the message of a successful package.install.
const InstallSucceeded = "Packages installed successfully"

// PackageInstall installs packages through a package provider.
//
//	- action: package.install
//	  name: curl            # or list: [curl, git]
//	  provider: aptitude    # optional, platform default otherwise
//	  repository:           # optional
//	    name: ppa:git-core/ppa
type PackageInstall struct {
	// Packages is built from the name (shorthand) and list fields.
	Packages []string `yaml:"-" json:"packages" validate:"required,min=1,dive,required"`

	// Provider pins a provider by name; empty selects the platform default.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Repository is an extra source registered before installing.
	Repository *engine.Repository `yaml:"repository,omitempty" json:"repository,omitempty"`
}

type packageFields struct {
	Name       string             `yaml:"name"`
	List       []string           `yaml:"list"`
	Provider   string             `yaml:"provider"`
	Repository *engine.Repository `yaml:"repository"`
}

func (a *PackageInstall) yamlFields() any {
	return packageFields{}
}

// UnmarshalYAML implements yaml.Unmarshaler. The name shorthand and the
// list form produce identical actions.
func (a *PackageInstall) UnmarshalYAML(node *yaml.Node) error {
	var raw packageFields
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name != "" {
		a.Packages = append(a.Packages, raw.Name)
	}
	a.Packages = append(a.Packages, raw.List...)
	a.Provider = raw.Provider
	a.Repository = raw.Repository
	return nil
}

// Kind implements engine.Action.
func (a *PackageInstall) Kind() string {
	return KindPackageInstall
}

// Describe implements engine.Action.
func (a *PackageInstall) Describe() string {
	return fmt.Sprintf("install %v", a.Packages)
}

// DryRun implements engine.Action. It resolves the variant exactly as Run
// does but never calls the provider.
func (a *PackageInstall) DryRun(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	variant, err := resolveVariant(rc, a.Packages, a.Provider, a.Repository)
	if err != nil {
		return nil, err
	}
	return &engine.ActionResult{
		Message: fmt.Sprintf("Install %s from %s", variant.PackageList(), variant.Provider.Name()),
	}, nil
}

// Run implements engine.Action: bootstrap the provider if needed, register
// the repository if declared and missing, then install.
func (a *PackageInstall) Run(ctx context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	variant, err := resolveVariant(rc, a.Packages, a.Provider, a.Repository)
	if err != nil {
		return nil, err
	}
	provider := variant.Provider

	ctx, span := tracer(rc).Start(ctx, "package.install", trace.WithAttributes(
		telemetry.AttrProviderName.String(provider.Name()),
		telemetry.AttrPackages.StringSlice(variant.Packages),
	))
	defer span.End()

	if err := ensureProvider(ctx, provider); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	added, err := ensureRepository(ctx, variant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if added {
		rc.Logger.Info().Str("repository", variant.Repository.Name).Str("provider", provider.Name()).Msg("Added repository")
	}

	if err := provider.Install(ctx, variant); err != nil {
		installErr := engine.NewInstallError(err).WithProvider(provider.Name()).WithStep("install")
		telemetry.RecordError(span, installErr)
		return nil, installErr
	}

	telemetry.RecordSuccess(span)
	return &engine.ActionResult{Message: InstallSucceeded}, nil
}
