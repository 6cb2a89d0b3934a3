package engine

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func manifest(name string, depends ...string) *Manifest {
	return &Manifest{Name: name, Path: name + ".yaml", Depends: depends}
}

func names(manifests []*Manifest) []string {
	out := make([]string, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, m.Name)
	}
	return out
}

func TestDAGBuilder_Resolve_Empty(t *testing.T) {
	order, err := NewDAGBuilder().Resolve(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty input, got: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("Expected empty order, got %v", names(order))
	}
}

func TestDAGBuilder_Resolve_Order(t *testing.T) {
	tests := []struct {
		name      string
		manifests []*Manifest
		want      []string
	}{
		{
			name:      "single manifest",
			manifests: []*Manifest{manifest("base")},
			want:      []string{"base"},
		},
		{
			name:      "dependency first",
			manifests: []*Manifest{manifest("tools", "base"), manifest("base")},
			want:      []string{"base", "tools"},
		},
		{
			name:      "independent manifests sorted by name",
			manifests: []*Manifest{manifest("zsh"), manifest("git"), manifest("vim")},
			want:      []string{"git", "vim", "zsh"},
		},
		{
			name: "chain",
			manifests: []*Manifest{
				manifest("c", "b"),
				manifest("b", "a"),
				manifest("a"),
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "diamond",
			manifests: []*Manifest{
				manifest("app", "left", "right"),
				manifest("left", "base"),
				manifest("right", "base"),
				manifest("base"),
			},
			want: []string{"base", "left", "right", "app"},
		},
		{
			name: "nested names",
			manifests: []*Manifest{
				manifest("dev.go", "dev.base"),
				manifest("dev.base"),
			},
			want: []string{"dev.base", "dev.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ResolveOrder(tt.manifests)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got := names(order); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDAGBuilder_Resolve_DependenciesPrecedeDependents(t *testing.T) {
	manifests := []*Manifest{
		manifest("e", "d", "b"),
		manifest("d", "c"),
		manifest("c", "a"),
		manifest("b", "a"),
		manifest("a"),
		manifest("f"),
	}

	order, err := ResolveOrder(manifests)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(order) != len(manifests) {
		t.Fatalf("Expected %d manifests, got %d", len(manifests), len(order))
	}

	position := make(map[string]int)
	for i, m := range order {
		position[m.Name] = i
	}
	for _, m := range manifests {
		for _, dep := range m.Depends {
			if position[dep] >= position[m.Name] {
				t.Errorf("%s at %d runs before its dependency %s at %d", m.Name, position[m.Name], dep, position[dep])
			}
		}
	}
}

func TestDAGBuilder_Resolve_Deterministic(t *testing.T) {
	build := func() []*Manifest {
		return []*Manifest{manifest("b"), manifest("c", "a"), manifest("a")}
	}

	first, err := ResolveOrder(build())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := ResolveOrder(build())
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !slices.Equal(names(first), names(next)) {
			t.Fatalf("order changed between runs: %v vs %v", names(first), names(next))
		}
	}
}

func TestDAGBuilder_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		manifests []*Manifest
		kind      error
		contains  string
	}{
		{
			name:      "unknown dependency",
			manifests: []*Manifest{manifest("tools", "missing")},
			kind:      ErrUnknownDependency,
			contains:  "depends on unknown manifest missing",
		},
		{
			name:      "self cycle",
			manifests: []*Manifest{manifest("a", "a")},
			kind:      ErrDependencyCycle,
			contains:  "a -> a",
		},
		{
			name:      "two node cycle",
			manifests: []*Manifest{manifest("a", "b"), manifest("b", "a")},
			kind:      ErrDependencyCycle,
			contains:  "a -> b -> a",
		},
		{
			name: "cycle behind acyclic prefix",
			manifests: []*Manifest{
				manifest("a", "b"),
				manifest("b", "c"),
				manifest("c", "d"),
				manifest("d", "b"),
			},
			kind:     ErrDependencyCycle,
			contains: "b -> c -> d -> b",
		},
		{
			name:      "duplicate name",
			manifests: []*Manifest{manifest("base"), manifest("base")},
			kind:      ErrInvalidManifest,
			contains:  "duplicate manifest name",
		},
		{
			name:      "empty name",
			manifests: []*Manifest{{Path: "x.yaml"}},
			kind:      ErrInvalidManifest,
			contains:  "empty name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ResolveOrder(tt.manifests)
			if err == nil {
				t.Fatalf("Expected error, got order %v", names(order))
			}
			if order != nil {
				t.Errorf("Expected no partial order, got %v", names(order))
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("Expected %v, got %v", tt.kind, err)
			}
			if !IsLoadError(err) {
				t.Errorf("Expected load error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %q", tt.contains, err.Error())
			}
		})
	}
}

func TestDAGBuilder_ToDOT(t *testing.T) {
	builder := NewDAGBuilder()
	base := manifest("base")
	base.Actions = []Action{nil, nil}
	if _, err := builder.Resolve([]*Manifest{manifest("tools", "base"), base}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	dot := builder.ToDOT()
	for _, want := range []string{
		"digraph Manifests {",
		`"base" [label="1: base\n2 action(s)"];`,
		`"tools" [label="2: tools\n0 action(s)"];`,
		`"base" -> "tools";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if len(builder.Order()) != 2 {
		t.Errorf("Expected Order() to hold 2 manifests, got %d", len(builder.Order()))
	}
}

func TestSubset(t *testing.T) {
	manifests := []*Manifest{
		manifest("base"),
		manifest("shell", "base"),
		manifest("editor", "base"),
		manifest("desktop", "editor"),
	}

	tests := []struct {
		name    string
		only    []string
		want    []string
		wantErr error
	}{
		{name: "no filter", want: []string{"base", "shell", "editor", "desktop"}},
		{name: "leaf pulls its chain", only: []string{"desktop"}, want: []string{"base", "editor", "desktop"}},
		{name: "root only", only: []string{"base"}, want: []string{"base"}},
		{name: "several", only: []string{"shell", "editor"}, want: []string{"base", "shell", "editor"}},
		{name: "unknown", only: []string{"nope"}, wantErr: ErrUnknownDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Subset(manifests, tt.only)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Subset failed: %v", err)
			}
			if !slices.Equal(names(got), tt.want) {
				t.Errorf("Subset = %v, want %v", names(got), tt.want)
			}
		})
	}
}
