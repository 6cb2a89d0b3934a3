package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/vars"
)

// Engine evaluates Rego policies against loaded manifests before a run.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.Add(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	return e, nil
}

// Add compiles a policy and registers it, replacing any policy of the same name.
func (e *Engine) Add(ctx context.Context, policy Policy) error {
	// Parse the Rego module
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies[policy.Name] = &compiledPolicy{
		policy:   &policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", module.Package.Path.String()).
		Msg("Policy compiled successfully")

	return nil
}

// LoadPolicies loads and compiles policy files.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := e.Add(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(policies)).
		Msg("Policies loaded")

	return nil
}

// Evaluate runs every enabled policy against every action of the manifests.
// The result is not allowed when any violation is blocking.
func (e *Engine) Evaluate(ctx context.Context, manifests []*engine.Manifest, platform vars.Platform) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	result := &Result{
		Allowed:    true,
		Violations: make([]Violation, 0),
		Evaluated:  make([]string, 0, len(e.policies)),
	}

	names := make([]string, 0, len(e.policies))
	for name, cp := range e.policies {
		if cp.policy.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	result.Evaluated = append(result.Evaluated, names...)

	for _, m := range manifests {
		for i, action := range m.Actions {
			input := &Input{
				Manifest: InputManifest{Name: m.Name, Path: m.Path, Depends: m.Depends},
				Action: InputAction{
					Index:       i,
					Kind:        action.Kind(),
					Description: action.Describe(),
					Spec:        action,
				},
				Platform: InputPlatform{OS: platform.OS, Family: platform.Family, Arch: platform.Arch},
			}

			for _, name := range names {
				violations, err := e.evaluatePolicy(ctx, e.policies[name], input)
				if err != nil {
					return nil, fmt.Errorf("policy %s failed on %s[%d]: %w", name, m.Name, i, err)
				}
				result.Violations = append(result.Violations, violations...)
			}
		}
	}

	result.Allowed = len(result.Blocking()) == 0

	e.logger.Debug().
		Int("policies", len(names)).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Dur("duration", time.Since(start)).
		Msg("Policy evaluation completed")

	return result, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation

	// Process results
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// The result should be a set of violations
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input))
		}
	}

	// Sets have no order.
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})

	return violations, nil
}

// createViolation creates a Violation from a deny set member.
func createViolation(policy *Policy, result interface{}, input *Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Manifest: input.Manifest.Name,
		Action:   input.Action.Index,
		Kind:     input.Action.Kind,
		Severity: policy.Severity,
	}

	// Extract message from result
	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies, sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Debug().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}

// Check evaluates the manifests and returns a policy error when any
// violation is blocking.
func (e *Engine) Check(ctx context.Context, manifests []*engine.Manifest, platform vars.Platform) (*Result, error) {
	result, err := e.Evaluate(ctx, manifests, platform)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		blocking := result.Blocking()
		first := blocking[0]
		return result, engine.NewError(engine.KindPolicy,
			fmt.Sprintf("%d policy violation(s), first: %s: %s", len(blocking), first.Policy, first.Message), nil).
			WithManifest(first.Manifest).WithAction(first.Action)
	}
	return result, nil
}
