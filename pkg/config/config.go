// Package config locates and loads the Homestead configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/homestead/pkg/telemetry"
)

// FileName is the configuration file searched for.
const FileName = "Homestead.yaml"

// AppDir is the per-user directory name under the platform config dir.
const AppDir = "homestead"

// Config is the user configuration.
type Config struct {
	// Requires is a version constraint on the homestead binary, e.g. ">= 0.4".
	Requires string `yaml:"requires"`

	// Manifests lists manifest files or directories.
	Manifests []string `yaml:"manifests" validate:"dive,required"`

	// Variables are global variables, available as .variables.<name>.
	Variables map[string]string `yaml:"variables" validate:"dive,keys,required,endkeys"`

	// ContinueOnError keeps applying after a failed action.
	ContinueOnError bool `yaml:"continue_on_error"`

	// Policies lists Rego policy files or directories checked before a run.
	Policies []string `yaml:"policies" validate:"dive,required"`

	// DisablePolicies names policies, built-in or loaded, that are not evaluated.
	DisablePolicies []string `yaml:"disable_policies" validate:"dive,required"`

	// StatePath is the run history database.
	StatePath string `yaml:"state_path"`

	// Log configures logging.
	Log telemetry.LoggingConfig `yaml:"log"`

	// Tracing configures trace export.
	Tracing telemetry.TracingConfig `yaml:"tracing"`

	// Metrics configures metrics collection.
	Metrics telemetry.MetricsConfig `yaml:"metrics"`

	// Source is the file the configuration was read from, empty when none was found.
	Source string `yaml:"-"`
}

// Options controls discovery.
type Options struct {
	// ConfigPath is an explicit configuration file; discovery is skipped.
	ConfigPath string

	// ManifestLocation replaces the configured manifest list.
	ManifestLocation string

	// WorkDir is searched first. Defaults to the current directory.
	WorkDir string

	// ConfigDir is the platform config directory searched second.
	// Defaults to os.UserConfigDir.
	ConfigDir string
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Manifests: []string{},
		Variables: map[string]string{},
		Log:       tel.Logging,
		Tracing:   tel.Tracing,
		Metrics:   tel.Metrics,
	}
}

// Load finds and reads the configuration. The working directory is
// searched first, then <config dir>/homestead. A missing file yields the
// defaults with no manifests; a file without manifests implies the
// current directory.
func Load(opts Options) (*Config, error) {
	if err := opts.fill(); err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("invalid config path %s: %w", path, err)
		}
		path = expanded
	} else {
		path = Find(opts.WorkDir, opts.ConfigDir)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if opts.ManifestLocation != "" {
		cfg.Manifests = []string{opts.ManifestLocation}
	}

	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(opts.ConfigDir, AppDir, "history.db")
	}
	expanded, err := homedir.Expand(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("invalid state path %s: %w", cfg.StatePath, err)
	}
	cfg.StatePath = expanded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *Options) fill() error {
	if o.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		o.WorkDir = wd
	}
	if o.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to locate user config directory: %w", err)
		}
		o.ConfigDir = dir
	}
	return nil
}

// Find returns the first configuration file found, or "".
func Find(workDir, configDir string) string {
	candidates := []string{
		filepath.Join(workDir, FileName),
		filepath.Join(configDir, AppDir, FileName),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	return ""
}

// readFile merges the file at path into cfg.
func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("found %s, but was unable to read it: %w", path, err)
	}
	c.Source = path

	if strings.TrimSpace(string(data)) != "" {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("found %s, but couldn't parse it: %w", path, err)
		}
	}

	// The presence of a config file implies manifests in the current directory.
	if len(c.Manifests) == 0 {
		c.Manifests = []string{"."}
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Requires != "" {
		if _, err := semver.NewConstraint(c.Requires); err != nil {
			return fmt.Errorf("invalid configuration: requires %q: %w", c.Requires, err)
		}
	}
	return nil
}

// CheckVersion fails when version does not satisfy Requires. Versions that
// are not semantic versions, such as development builds, always pass.
func (c *Config) CheckVersion(version string) error {
	if c.Requires == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", c.Requires, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil
	}
	if !constraint.Check(v) {
		source := c.Source
		if source == "" {
			source = "configuration"
		}
		return fmt.Errorf("%s requires homestead %s, this is %s", source, c.Requires, version)
	}
	return nil
}

// Telemetry builds the telemetry configuration for a run.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.ServiceVersion = version
	tel.Logging = c.Log
	tel.Tracing = c.Tracing
	tel.Metrics = c.Metrics
	return tel
}
