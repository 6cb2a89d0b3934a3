package policy

import (
	"github.com/openfroyo/homestead/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but do not block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"
)

// Blocking reports whether violations of this severity block a run.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy is a named Rego module. Its package must define a deny set.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Manifest string   `json:"manifest"`
	Action   int      `json:"action"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result aggregates the violations of one evaluation.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations"`

	// Evaluated lists the names of the policies that ran.
	Evaluated []string `json:"evaluated"`
}

// Blocking returns the violations that block the run.
func (r *Result) Blocking() []Violation {
	out := make([]Violation, 0)
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document a policy sees as input for one action.
type Input struct {
	Manifest InputManifest `json:"manifest"`
	Action   InputAction   `json:"action"`
	Platform InputPlatform `json:"platform"`
}

// InputManifest describes the manifest declaring the action.
type InputManifest struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Depends []string `json:"depends"`
}

// InputAction describes the action. Spec holds the action's declared
// fields, before templates are rendered.
type InputAction struct {
	Index       int           `json:"index"`
	Kind        string        `json:"kind"`
	Description string        `json:"description"`
	Spec        engine.Action `json:"spec"`
}

// InputPlatform carries the platform facts.
type InputPlatform struct {
	OS     string `json:"os"`
	Family string `json:"family"`
	Arch   string `json:"arch"`
}
