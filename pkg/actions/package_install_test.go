package actions

import (
	"context"
	"errors"
	"reflect"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/engine/enginetest"
)

func TestPackageInstallDryRun(t *testing.T) {
	provider := enginetest.NewFakeProvider("aptitude")
	rc, _ := newRunContext(t, enginetest.NewRegistry(provider), map[string]string{"editor": "vim"})

	action := &PackageInstall{Packages: []string{"curl", "{{ .variables.editor }}"}}
	result, err := action.DryRun(context.Background(), &engine.Manifest{Name: "base"}, rc)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Message != "Install curl, vim from aptitude" {
		t.Errorf("DryRun() message = %q", result.Message)
	}
	if calls := provider.Calls(); len(calls) != 0 {
		t.Errorf("dry-run made provider calls: %v", calls)
	}
}

func TestPackageInstallDryRunErrors(t *testing.T) {
	registry := enginetest.NewRegistry(enginetest.NewFakeProvider("aptitude"))
	rc, _ := newRunContext(t, registry, nil)
	m := &engine.Manifest{Name: "base"}

	_, err := (&PackageInstall{Packages: []string{"curl"}, Provider: "chocolatey"}).DryRun(context.Background(), m, rc)
	if !errors.Is(err, engine.ErrUnknownProvider) {
		t.Errorf("pinned unknown provider error = %v", err)
	}

	_, err = (&PackageInstall{Packages: []string{"{{ .variables.nope }}"}}).DryRun(context.Background(), m, rc)
	if !errors.Is(err, engine.ErrTemplate) {
		t.Errorf("undefined variable error = %v", err)
	}

	empty := &enginetest.Registry{Providers: map[string]engine.PackageProvider{}}
	rc.Providers = empty
	_, err = (&PackageInstall{Packages: []string{"curl"}}).DryRun(context.Background(), m, rc)
	if !errors.Is(err, engine.ErrNoDefaultProvider) {
		t.Errorf("no default provider error = %v", err)
	}
}

func TestPackageInstallRun(t *testing.T) {
	repo := &engine.Repository{Name: "ppa:git-core/ppa"}

	tests := []struct {
		name      string
		setup     func(*enginetest.FakeProvider)
		repo      *engine.Repository
		wantKind  engine.ErrorKind
		wantCalls []string
		wantMsg   string
	}{
		{
			name:      "available, no repository",
			wantCalls: []string{"available", "install"},
		},
		{
			name:      "bootstrap then install",
			setup:     func(p *enginetest.FakeProvider) { p.IsAvailable = false },
			wantCalls: []string{"available", "bootstrap", "install"},
		},
		{
			name: "bootstrap fails",
			setup: func(p *enginetest.FakeProvider) {
				p.IsAvailable = false
				p.BootstrapErr = errors.New("no network")
			},
			wantKind:  engine.KindProviderUnavailable,
			wantCalls: []string{"available", "bootstrap"},
		},
		{
			name:      "repository already present",
			setup:     func(p *enginetest.FakeProvider) { p.Repositories[repo.Name] = true },
			repo:      repo,
			wantCalls: []string{"available", "has_repository", "install"},
		},
		{
			name:      "repository added",
			repo:      repo,
			wantCalls: []string{"available", "has_repository", "add_repository", "has_repository", "install"},
		},
		{
			name:      "repository add fails",
			setup:     func(p *enginetest.FakeProvider) { p.AddRepositoryErr = errors.New("gpg error") },
			repo:      repo,
			wantKind:  engine.KindRepository,
			wantCalls: []string{"available", "has_repository", "add_repository"},
			wantMsg:   "failed to add repository ppa:git-core/ppa (provider=aptitude, step=repository): gpg error",
		},
		{
			name:      "repository still missing",
			setup:     func(p *enginetest.FakeProvider) { p.IgnoreAdd = true },
			repo:      repo,
			wantKind:  engine.KindRepository,
			wantCalls: []string{"available", "has_repository", "add_repository", "has_repository"},
		},
		{
			name:      "install fails verbatim",
			setup:     func(p *enginetest.FakeProvider) { p.InstallErr = errors.New("E: Unable to locate package curl") },
			wantKind:  engine.KindInstall,
			wantCalls: []string{"available", "install"},
			wantMsg:   "E: Unable to locate package curl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := enginetest.NewFakeProvider("aptitude")
			if tt.setup != nil {
				tt.setup(provider)
			}
			rc, _ := newRunContext(t, enginetest.NewRegistry(provider), nil)

			action := &PackageInstall{Packages: []string{"curl"}, Repository: tt.repo}
			result, err := action.Run(context.Background(), &engine.Manifest{Name: "base"}, rc)

			if !reflect.DeepEqual(provider.Calls(), tt.wantCalls) {
				t.Errorf("calls = %v, want %v", provider.Calls(), tt.wantCalls)
			}

			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				if result.Message != InstallSucceeded {
					t.Errorf("Run() message = %q", result.Message)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error")
			}
			if got := engine.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %s, want %s", got, tt.wantKind)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
			if provider.Called("install") && tt.wantKind != engine.KindInstall {
				t.Error("install must not be called after an earlier step failed")
			}
		})
	}
}

func TestPackageInstallSpanEndedOnEveryPath(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)).Tracer("test")

	ok := enginetest.NewFakeProvider("aptitude")
	failing := enginetest.NewFakeProvider("dnf")
	failing.IsAvailable = false
	failing.BootstrapErr = errors.New("missing")

	rc, _ := newRunContext(t, enginetest.NewRegistry(ok, failing), nil)
	rc.Tracer = tracer

	m := &engine.Manifest{Name: "base"}
	if _, err := (&PackageInstall{Packages: []string{"curl"}}).Run(context.Background(), m, rc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := (&PackageInstall{Packages: []string{"curl"}, Provider: "dnf"}).Run(context.Background(), m, rc); err == nil {
		t.Fatal("expected bootstrap failure")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d ended spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.Name != "package.install" {
			t.Errorf("span name = %s", s.Name)
		}
	}
	var providerAttr string
	for _, kv := range spans[1].Attributes {
		if string(kv.Key) == "provider.name" {
			providerAttr = kv.Value.AsString()
		}
	}
	if providerAttr != "dnf" {
		t.Errorf("provider.name = %q, want dnf", providerAttr)
	}
}

func TestPackageRepository(t *testing.T) {
	provider := enginetest.NewFakeProvider("homebrew")
	rc, _ := newRunContext(t, enginetest.NewRegistry(provider), nil)
	m := &engine.Manifest{Name: "taps"}
	action := &PackageRepository{Repository: engine.Repository{Name: "hashicorp/tap"}}

	result, err := action.DryRun(context.Background(), m, rc)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Message != "Add repository hashicorp/tap to homebrew" {
		t.Errorf("DryRun() message = %q", result.Message)
	}
	if provider.Called("add_repository") {
		t.Error("dry-run must not add repositories")
	}

	result, err = action.Run(context.Background(), m, rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Message != "Repository hashicorp/tap added" {
		t.Errorf("Run() message = %q", result.Message)
	}

	result, err = action.Run(context.Background(), m, rc)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result.Message != "Repository hashicorp/tap already present" {
		t.Errorf("second Run() message = %q", result.Message)
	}
}
