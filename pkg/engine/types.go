package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/homestead/pkg/process"
	"github.com/openfroyo/homestead/pkg/vars"
)

// Manifest is a named, ordered group of actions plus dependency references
// and local variables. Manifests are immutable once loaded.
type Manifest struct {
	// Name is the manifest identity, unique within a run.
	Name string `json:"name"`

	// Path is the file the manifest was loaded from.
	Path string `json:"path,omitempty"`

	// Depends lists the names of manifests that must execute first.
	Depends []string `json:"depends,omitempty"`

	// Variables are manifest-local variables; they override global ones.
	Variables map[string]string `json:"variables,omitempty"`

	// Actions are executed in declared order.
	Actions []Action `json:"-"`
}

// Dir returns the directory containing the manifest file.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return "."
	}
	return filepath.Dir(m.Path)
}

// FilesDir returns the directory file actions resolve their sources from.
func (m *Manifest) FilesDir() string {
	return filepath.Join(m.Dir(), "files")
}

// Action is one declared unit of desired state. Every variant exposes the
// same two operations; DryRun must never mutate host state.
type Action interface {
	// Kind returns the action discriminator (e.g. "package.install").
	Kind() string

	// Describe returns a short static summary for logs and graphs.
	Describe() string

	// DryRun resolves the action exactly as Run would and reports the
	// intended effect without issuing mutating calls.
	DryRun(ctx context.Context, manifest *Manifest, rc *RunContext) (*ActionResult, error)

	// Run enacts the action.
	Run(ctx context.Context, manifest *Manifest, rc *RunContext) (*ActionResult, error)
}

// ActionResult is the human-readable outcome of one action invocation.
// Success or failure is carried by the accompanying error.
type ActionResult struct {
	Message string `json:"message"`
}

// RunContext carries the collaborators an action needs. It is built by the
// driver per manifest and treated as read-only by actions.
type RunContext struct {
	// Vars is the variable context for the current manifest.
	Vars *vars.Context

	// Providers resolves package providers.
	Providers ProviderRegistry

	// Runner invokes external processes.
	Runner process.Runner

	// Tracer creates spans around action execution.
	Tracer trace.Tracer

	// Logger is scoped to the current manifest.
	Logger zerolog.Logger
}

// Mode selects between simulation and real execution.
type Mode string

const (
	// ModeDryRun reports intended changes without mutating the host.
	ModeDryRun Mode = "dry-run"

	// ModeApply enacts changes.
	ModeApply Mode = "apply"
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

// ActionRecord is the outcome of one executed action.
type ActionRecord struct {
	// Manifest is the originating manifest name.
	Manifest string `json:"manifest"`

	// Index is the position of the action within the manifest.
	Index int `json:"index"`

	// Kind is the action discriminator.
	Kind string `json:"kind"`

	// Message is the result message on success.
	Message string `json:"message,omitempty"`

	// Err is the failure, if any.
	Err error `json:"-"`

	// Duration is how long the action took.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the action failed.
func (r ActionRecord) Failed() bool {
	return r.Err != nil
}

// Report aggregates the records of a run in execution order.
type Report struct {
	RunID       string         `json:"run_id"`
	Mode        Mode           `json:"mode"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Records     []ActionRecord `json:"records"`

	// Pending counts the actions never attempted because the run aborted.
	Pending int `json:"pending"`
}

// Messages returns the result messages of successful actions in order.
func (r *Report) Messages() []string {
	messages := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		if !rec.Failed() {
			messages = append(messages, rec.Message)
		}
	}
	return messages
}

// Failures returns the failed records in order.
func (r *Report) Failures() []ActionRecord {
	failures := make([]ActionRecord, 0)
	for _, rec := range r.Records {
		if rec.Failed() {
			failures = append(failures, rec)
		}
	}
	return failures
}

// Duration returns the total run duration.
func (r *Report) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Summary renders a one-line outcome of the run.
func (r *Report) Summary() string {
	failed := len(r.Failures())
	return fmt.Sprintf("%s %s: %d succeeded, %d failed, %d pending in %s",
		r.Mode, r.Status, len(r.Records)-failed, failed, r.Pending, r.Duration().Round(time.Millisecond))
}
