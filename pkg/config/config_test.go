package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		workFile      *string
		userFile      *string
		location      string
		wantManifests []string
		wantSource    string
	}{
		{
			name:          "no file",
			wantManifests: []string{},
		},
		{
			name:          "no file with location",
			location:      "./manifests",
			wantManifests: []string{"./manifests"},
		},
		{
			name:          "empty file",
			workFile:      ptr(""),
			wantManifests: []string{"."},
			wantSource:    "work",
		},
		{
			name:          "file without manifests",
			workFile:      ptr("variables:\n  editor: vim\n"),
			wantManifests: []string{"."},
			wantSource:    "work",
		},
		{
			name:          "file with manifests",
			workFile:      ptr("manifests:\n  - ./base\n  - ./dev\n"),
			wantManifests: []string{"./base", "./dev"},
			wantSource:    "work",
		},
		{
			name:          "location replaces list",
			workFile:      ptr("manifests:\n  - ./base\n  - ./dev\n"),
			location:      "./other",
			wantManifests: []string{"./other"},
			wantSource:    "work",
		},
		{
			name:          "user config dir",
			userFile:      ptr("manifests: [~/dotfiles]\n"),
			wantManifests: []string{"~/dotfiles"},
			wantSource:    "user",
		},
		{
			name:          "work dir wins",
			workFile:      ptr("manifests: [./local]\n"),
			userFile:      ptr("manifests: [./global]\n"),
			wantManifests: []string{"./local"},
			wantSource:    "work",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workDir := t.TempDir()
			configDir := t.TempDir()
			workPath := filepath.Join(workDir, FileName)
			userPath := filepath.Join(configDir, AppDir, FileName)
			if tt.workFile != nil {
				write(t, workPath, *tt.workFile)
			}
			if tt.userFile != nil {
				write(t, userPath, *tt.userFile)
			}

			cfg, err := Load(Options{WorkDir: workDir, ConfigDir: configDir, ManifestLocation: tt.location})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(cfg.Manifests, tt.wantManifests) {
				t.Errorf("Manifests = %v, want %v", cfg.Manifests, tt.wantManifests)
			}

			wantSource := ""
			switch tt.wantSource {
			case "work":
				wantSource = workPath
			case "user":
				wantSource = userPath
			}
			if cfg.Source != wantSource {
				t.Errorf("Source = %q, want %q", cfg.Source, wantSource)
			}
			if cfg.StatePath != filepath.Join(configDir, AppDir, "history.db") {
				t.Errorf("StatePath = %q", cfg.StatePath)
			}
		})
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	write(t, path, `
manifests: [./m]
variables:
  editor: nvim
continue_on_error: true
policies: [./policies]
disable_policies: [privileged-command]
state_path: /tmp/homestead-test.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(Options{ConfigPath: path, WorkDir: t.TempDir(), ConfigDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Variables["editor"] != "nvim" || !cfg.ContinueOnError {
		t.Errorf("config = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Policies, []string{"./policies"}) || !reflect.DeepEqual(cfg.DisablePolicies, []string{"privileged-command"}) {
		t.Errorf("Policies = %v, DisablePolicies = %v", cfg.Policies, cfg.DisablePolicies)
	}
	if cfg.StatePath != "/tmp/homestead-test.db" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}

	tel := cfg.Telemetry("1.2.3")
	if tel.ServiceVersion != "1.2.3" || tel.Logging.Level != "debug" || tel.Logging.Format != "json" {
		t.Errorf("Telemetry() = %+v", tel)
	}
	if err := tel.Validate(); err != nil {
		t.Errorf("telemetry config invalid: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(Options{ConfigPath: filepath.Join(dir, "missing.yaml"), WorkDir: dir, ConfigDir: dir}); err == nil {
		t.Error("expected error for missing explicit config")
	}

	bad := filepath.Join(dir, "bad.yaml")
	write(t, bad, "manifests: [unterminated")
	_, err := Load(Options{ConfigPath: bad, WorkDir: dir, ConfigDir: dir})
	if err == nil || !strings.Contains(err.Error(), "couldn't parse") {
		t.Errorf("error = %v, want parse error", err)
	}

	empty := filepath.Join(dir, "empty-entry.yaml")
	write(t, empty, "manifests: ['']\n")
	if _, err := Load(Options{ConfigPath: empty, WorkDir: dir, ConfigDir: dir}); err == nil {
		t.Error("expected validation error for empty manifest entry")
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name     string
		requires string
		version  string
		wantErr  bool
	}{
		{name: "no constraint", version: "0.1.0"},
		{name: "satisfied", requires: ">= 1.2", version: "1.2.3"},
		{name: "caret", requires: "^1.0", version: "1.9.0"},
		{name: "too old", requires: ">= 2.0", version: "1.2.3", wantErr: true},
		{name: "too new", requires: "~1.2", version: "1.3.0", wantErr: true},
		{name: "development build", requires: ">= 2.0", version: "dev"},
		{name: "v prefix", requires: ">= 1.0", version: "v1.4.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Requires: tt.requires}
			err := cfg.CheckVersion(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckVersion(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestLoadInvalidRequires(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requires.yaml")
	write(t, path, "requires: not-a-constraint!\n")

	_, err := Load(Options{ConfigPath: path, WorkDir: dir, ConfigDir: dir})
	if err == nil || !strings.Contains(err.Error(), "requires") {
		t.Errorf("error = %v, want requires validation error", err)
	}
}

func TestFind(t *testing.T) {
	workDir := t.TempDir()
	if got := Find(workDir, t.TempDir()); got != "" {
		t.Errorf("Find() = %q, want empty", got)
	}

	// A directory with the config name is not a config file.
	if err := os.Mkdir(filepath.Join(workDir, FileName), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := Find(workDir, t.TempDir()); got != "" {
		t.Errorf("Find() = %q, want empty for directory", got)
	}
}

func ptr(s string) *string {
	return &s
}
