package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/homestead/pkg/config"
	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/manifests"
	"github.com/openfroyo/homestead/pkg/policy"
	"github.com/openfroyo/homestead/pkg/process"
	"github.com/openfroyo/homestead/pkg/providers/packages"
	"github.com/openfroyo/homestead/pkg/stores"
	"github.com/openfroyo/homestead/pkg/telemetry"
	"github.com/openfroyo/homestead/pkg/vars"
)

// app holds the collaborators of one command invocation.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	platform vars.Platform
	runner   process.Runner
	registry *packages.Registry
}

// newApp loads the configuration and wires telemetry, the process runner
// and the package provider registry. metricsFile, when set, enables the
// metrics textfile export.
func (o *rootOptions) newApp(metricsFile string) (*app, error) {
	cfg, err := config.Load(config.Options{
		ConfigPath:       o.configPath,
		ManifestLocation: o.manifests,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckVersion(o.version); err != nil {
		return nil, err
	}

	if o.verbose {
		cfg.Log.Level = "debug"
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	telCfg := cfg.Telemetry(o.version)
	if metricsFile != "" {
		telCfg.Metrics.Enabled = true
		telCfg.Metrics.TextfilePath = metricsFile
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger := tel.Logger
	if cfg.Source != "" {
		logger.Debug().Str("config", cfg.Source).Msg("Loaded configuration")
	}

	platform := vars.DetectPlatform()
	runner := process.NewExecRunner(telemetry.ComponentLogger(logger, "process"))
	registry := packages.NewRegistry(platform, runner,
		packages.WithLogger(telemetry.ComponentLogger(logger, "providers")),
		packages.WithInstrumentation(tel.Metrics, tel.Tracer.Tracer()),
	)

	return &app{
		cfg:      cfg,
		tel:      tel,
		logger:   logger,
		platform: platform,
		runner:   runner,
		registry: registry,
	}, nil
}

// close flushes telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// loadManifests loads the configured manifests, resolves the execution
// order of the whole set and then restricts it to only (plus dependencies)
// when set. The configuration file is never loaded as a manifest.
func (a *app) loadManifests(ctx context.Context, only []string) ([]*engine.Manifest, error) {
	loaded, err := manifests.Load(ctx, a.cfg.Manifests,
		manifests.WithLogger(telemetry.ComponentLogger(a.logger, "manifests")),
		manifests.WithIgnore(config.FileName))
	if err != nil {
		return nil, err
	}

	ordered, err := engine.ResolveOrder(loaded)
	if err != nil {
		return nil, err
	}

	return engine.Subset(ordered, only)
}

// variables builds the base variable context.
func (a *app) variables() *vars.Context {
	return vars.New(a.platform, a.cfg.Variables, nil)
}

// openStore opens and migrates the run history database.
func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: a.cfg.StatePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// policies builds the policy engine: built-ins, then the configured policy
// paths, then the configured disables.
func (a *app) policies(ctx context.Context) (*policy.Engine, error) {
	pe, err := policy.NewEngine(ctx, telemetry.ComponentLogger(a.logger, "policy"))
	if err != nil {
		return nil, err
	}
	if len(a.cfg.Policies) > 0 {
		if err := pe.LoadPolicies(ctx, a.cfg.Policies); err != nil {
			return nil, err
		}
	}
	for _, name := range a.cfg.DisablePolicies {
		if err := pe.DisablePolicy(name); err != nil {
			a.logger.Warn().Str("policy", name).Msg("Cannot disable unknown policy")
		}
	}
	return pe, nil
}
