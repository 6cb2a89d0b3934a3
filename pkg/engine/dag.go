package engine

import (
	"fmt"
	"slices"
	"strings"
)

// visitState is the DFS mark of a manifest during ordering.
type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// DAGBuilder orders manifests by their dependency references.
// An edge points from a manifest to each manifest it depends on; the
// resulting order places every manifest after all of its dependencies.
type DAGBuilder struct {
	// manifests maps manifest names to manifests
	manifests map[string]*Manifest

	// names holds manifest names sorted for deterministic traversal
	names []string

	// order is the computed execution order
	order []*Manifest
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		manifests: make(map[string]*Manifest),
		names:     make([]string, 0),
		order:     make([]*Manifest, 0),
	}
}

// Resolve computes a total execution order for the manifests. It fails with
// KindUnknownDependency when a reference names a manifest that was not
// loaded and with KindDependencyCycle when the graph is cyclic. No partial
// order is ever returned.
func (b *DAGBuilder) Resolve(manifests []*Manifest) ([]*Manifest, error) {
	if err := b.initialize(manifests); err != nil {
		return nil, err
	}

	state := make(map[string]visitState, len(b.manifests))
	path := make([]string, 0)

	for _, name := range b.names {
		if state[name] != unvisited {
			continue
		}
		if err := b.visit(name, state, path); err != nil {
			return nil, err
		}
	}

	return b.order, nil
}

// initialize indexes manifests and validates their dependency references.
func (b *DAGBuilder) initialize(manifests []*Manifest) error {
	// First pass: index all manifests
	for _, m := range manifests {
		if m.Name == "" {
			return NewError(KindInvalidManifest, "manifest has empty name", nil)
		}
		if existing, exists := b.manifests[m.Name]; exists {
			return NewError(KindInvalidManifest,
				fmt.Sprintf("duplicate manifest name %q (%s and %s)", m.Name, existing.Path, m.Path), nil)
		}
		b.manifests[m.Name] = m
		b.names = append(b.names, m.Name)
	}
	slices.Sort(b.names)

	// Second pass: validate dependency targets exist
	for _, name := range b.names {
		m := b.manifests[name]
		for _, dep := range m.Depends {
			if _, exists := b.manifests[dep]; !exists {
				return NewError(KindUnknownDependency,
					fmt.Sprintf("manifest %s depends on unknown manifest %s", m.Name, dep), nil).
					WithManifest(m.Name)
			}
		}
	}

	return nil
}

// visit performs the depth-first traversal, appending manifests in post-order.
func (b *DAGBuilder) visit(name string, state map[string]visitState, path []string) error {
	state[name] = visiting
	path = append(path, name)

	for _, dep := range b.manifests[name].Depends {
		switch state[dep] {
		case unvisited:
			if err := b.visit(dep, state, path); err != nil {
				return err
			}
		case visiting:
			// Found a cycle - construct the cycle path
			cycleStart := slices.Index(path, dep)
			cycle := append(slices.Clone(path[cycleStart:]), dep)
			return NewError(KindDependencyCycle,
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)), nil)
		}
	}

	state[name] = visited
	b.order = append(b.order, b.manifests[name])
	return nil
}

// Order returns the computed execution order.
func (b *DAGBuilder) Order() []*Manifest {
	return b.order
}

// ToDOT generates a DOT format representation of the manifest graph.
// Edges point from a dependency to its dependent, in execution direction.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Manifests {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i, m := range b.order {
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%d: %s\\n%d action(s)\"];\n",
			m.Name, i+1, m.Name, len(m.Actions)))
	}
	sb.WriteString("\n")

	for _, m := range b.order {
		for _, dep := range m.Depends {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dep, m.Name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// ResolveOrder is a convenience wrapper around a fresh DAGBuilder.
func ResolveOrder(manifests []*Manifest) ([]*Manifest, error) {
	return NewDAGBuilder().Resolve(manifests)
}

// Subset restricts manifests to the named ones plus their transitive
// dependencies, preserving the input order.
func Subset(manifests []*Manifest, names []string) ([]*Manifest, error) {
	if len(names) == 0 {
		return manifests, nil
	}

	index := make(map[string]*Manifest, len(manifests))
	for _, m := range manifests {
		index[m.Name] = m
	}

	keep := make(map[string]bool)
	var mark func(name string) error
	mark = func(name string) error {
		if keep[name] {
			return nil
		}
		m, ok := index[name]
		if !ok {
			return NewError(KindUnknownDependency, fmt.Sprintf("unknown manifest %s", name), nil)
		}
		keep[name] = true
		for _, dep := range m.Depends {
			if err := mark(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if err := mark(name); err != nil {
			return nil, err
		}
	}

	subset := make([]*Manifest, 0, len(keep))
	for _, m := range manifests {
		if keep[m.Name] {
			subset = append(subset, m)
		}
	}
	return subset, nil
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
