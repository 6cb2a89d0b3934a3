package engine_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/homestead/pkg/actions"
	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/engine/enginetest"
	"github.com/openfroyo/homestead/pkg/manifests"
	"github.com/openfroyo/homestead/pkg/process/processtest"
	"github.com/openfroyo/homestead/pkg/vars"
)

// stubAction is a scripted action that counts its invocations.
type stubAction struct {
	message string
	err     error

	// lookup is resolved from the run context on every invocation.
	lookup string

	dryRuns int
	runs    int
	seen    []string
}

func (a *stubAction) Kind() string     { return "stub" }
func (a *stubAction) Describe() string { return "stub " + a.message }

func (a *stubAction) DryRun(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	a.dryRuns++
	return a.result(rc)
}

func (a *stubAction) Run(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	a.runs++
	return a.result(rc)
}

func (a *stubAction) result(rc *engine.RunContext) (*engine.ActionResult, error) {
	if a.lookup != "" {
		value, _ := rc.Vars.Lookup(a.lookup)
		a.seen = append(a.seen, value)
	}
	if a.err != nil {
		return nil, a.err
	}
	return &engine.ActionResult{Message: a.message}, nil
}

func ok(message string) *stubAction { return &stubAction{message: message} }
func fail(err string) *stubAction   { return &stubAction{err: errors.New(err)} }

func baseVars(global map[string]string) *vars.Context {
	return vars.New(
		vars.Platform{OS: "linux", Family: "debian", Arch: "amd64"},
		global,
		nil,
		vars.WithUserFacts(map[string]string{"home_dir": "/home/test"}),
		vars.WithEnvironment(map[string]string{}),
	)
}

func newDriver(opts ...engine.DriverOption) *engine.Driver {
	return engine.NewDriver(
		enginetest.NewRegistry(enginetest.NewFakeProvider("fake")),
		processtest.NewFakeRunner(),
		opts...,
	)
}

// fakeMetrics records measurements in memory.
type fakeMetrics struct {
	actions []string
	runs    []string
}

func (m *fakeMetrics) RecordAction(kind, mode, status string, _ time.Duration) {
	m.actions = append(m.actions, kind+"/"+mode+"/"+status)
}

func (m *fakeMetrics) RecordRunCompleted(mode, status string, _ time.Duration) {
	m.runs = append(m.runs, mode+"/"+status)
}

// fakeRecorder captures the run history calls.
type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	actions  []engine.ActionRecord
	finished []engine.RunStatus
	err      error
}

func (r *fakeRecorder) StartRun(_ context.Context, report *engine.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, report.RunID)
	return r.err
}

func (r *fakeRecorder) RecordAction(_ context.Context, _ string, record engine.ActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, record)
	return r.err
}

func (r *fakeRecorder) FinishRun(_ context.Context, report *engine.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, report.Status)
	return r.err
}

func TestExecute_Modes(t *testing.T) {
	tests := []struct {
		name        string
		mode        engine.Mode
		wantDryRuns int
		wantRuns    int
	}{
		{name: "dry-run", mode: engine.ModeDryRun, wantDryRuns: 1},
		{name: "apply", mode: engine.ModeApply, wantRuns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := ok("first"), ok("second")
			ordered := []*engine.Manifest{
				{Name: "base", Actions: []engine.Action{first}},
				{Name: "tools", Depends: []string{"base"}, Actions: []engine.Action{second}},
			}

			report, err := newDriver().Execute(context.Background(), ordered, baseVars(nil), tt.mode)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			for _, a := range []*stubAction{first, second} {
				if a.dryRuns != tt.wantDryRuns || a.runs != tt.wantRuns {
					t.Errorf("%s: dry-runs=%d runs=%d, want %d/%d", a.message, a.dryRuns, a.runs, tt.wantDryRuns, tt.wantRuns)
				}
			}
			if report.Mode != tt.mode {
				t.Errorf("Mode = %s, want %s", report.Mode, tt.mode)
			}
			if report.Status != engine.RunStatusSucceeded {
				t.Errorf("Status = %s, want succeeded", report.Status)
			}
			if got := report.Messages(); !slices.Equal(got, []string{"first", "second"}) {
				t.Errorf("Messages = %v", got)
			}
			if report.RunID == "" {
				t.Error("Expected a run id")
			}
			if report.CompletedAt.Before(report.StartedAt) {
				t.Error("CompletedAt precedes StartedAt")
			}
		})
	}
}

func TestExecute_InvalidMode(t *testing.T) {
	if _, err := newDriver().Execute(context.Background(), nil, baseVars(nil), engine.Mode("plan")); err == nil {
		t.Fatal("Expected error for invalid mode")
	}
}

func TestExecute_FailurePolicy(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		wantStatus      engine.RunStatus
		wantExecuted    int
		wantPending     int
		wantLastRuns    int
		wantAborted     bool
	}{
		{
			name:         "abort",
			wantStatus:   engine.RunStatusFailed,
			wantExecuted: 2,
			wantPending:  2,
			wantLastRuns: 0,
			wantAborted:  true,
		},
		{
			name:            "continue",
			continueOnError: true,
			wantStatus:      engine.RunStatusPartial,
			wantExecuted:    4,
			wantPending:     0,
			wantLastRuns:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := fail("exit status 100")
			after := ok("after")
			last := ok("last")
			ordered := []*engine.Manifest{
				{Name: "base", Actions: []engine.Action{ok("before"), broken, after}},
				{Name: "tools", Actions: []engine.Action{last}},
			}

			report, err := newDriver(engine.WithContinueOnError(tt.continueOnError)).
				Execute(context.Background(), ordered, baseVars(nil), engine.ModeApply)
			if err == nil {
				t.Fatal("Expected error")
			}

			var runErr *engine.RunError
			if !errors.As(err, &runErr) {
				t.Fatalf("Expected *RunError, got %T", err)
			}
			if runErr.Aborted != tt.wantAborted {
				t.Errorf("Aborted = %v, want %v", runErr.Aborted, tt.wantAborted)
			}
			if len(runErr.Failures) != 1 {
				t.Fatalf("Expected 1 failure, got %d", len(runErr.Failures))
			}
			failure := runErr.Failures[0]
			if failure.Manifest != "base" || failure.Index != 1 {
				t.Errorf("failure at %s[%d], want base[1]", failure.Manifest, failure.Index)
			}
			if !errors.Is(err, engine.ErrAction) {
				t.Errorf("Expected failure to classify as action error, got %v", err)
			}

			if report.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", report.Status, tt.wantStatus)
			}
			if len(report.Records) != tt.wantExecuted {
				t.Errorf("executed %d, want %d", len(report.Records), tt.wantExecuted)
			}
			if report.Pending != tt.wantPending {
				t.Errorf("Pending = %d, want %d", report.Pending, tt.wantPending)
			}
			if last.runs != tt.wantLastRuns {
				t.Errorf("last action ran %d times, want %d", last.runs, tt.wantLastRuns)
			}
			if broken.runs != 1 {
				t.Errorf("failing action ran %d times, want 1", broken.runs)
			}
		})
	}
}

func TestExecute_AllFailed(t *testing.T) {
	ordered := []*engine.Manifest{
		{Name: "base", Actions: []engine.Action{fail("one"), fail("two")}},
	}

	report, err := newDriver(engine.WithContinueOnError(true)).
		Execute(context.Background(), ordered, baseVars(nil), engine.ModeApply)
	if err == nil {
		t.Fatal("Expected error")
	}
	if report.Status != engine.RunStatusFailed {
		t.Errorf("Status = %s, want failed", report.Status)
	}
	if !strings.Contains(err.Error(), "apply completed with 2 failed action(s)") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecute_DryRunFailureAborts(t *testing.T) {
	after := ok("after")
	ordered := []*engine.Manifest{
		{Name: "base", Actions: []engine.Action{fail("unknown provider"), after}},
	}

	report, err := newDriver().Execute(context.Background(), ordered, baseVars(nil), engine.ModeDryRun)
	if err == nil {
		t.Fatal("Expected error")
	}
	if after.dryRuns != 0 {
		t.Error("Expected dry-run to stop at the first failure")
	}
	if report.Pending != 1 {
		t.Errorf("Pending = %d, want 1", report.Pending)
	}
	if !strings.Contains(err.Error(), "dry-run aborted after 1 failed action(s)") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecute_ManifestVariables(t *testing.T) {
	inBase := &stubAction{message: "base", lookup: "variables.editor"}
	inTools := &stubAction{message: "tools", lookup: "variables.editor"}
	ordered := []*engine.Manifest{
		{Name: "base", Variables: map[string]string{"editor": "nvim"}, Actions: []engine.Action{inBase}},
		{Name: "tools", Actions: []engine.Action{inTools}},
	}

	base := baseVars(map[string]string{"editor": "vi"})
	if _, err := newDriver().Execute(context.Background(), ordered, base, engine.ModeApply); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !slices.Equal(inBase.seen, []string{"nvim"}) {
		t.Errorf("base saw %v, want [nvim]", inBase.seen)
	}
	if !slices.Equal(inTools.seen, []string{"vi"}) {
		t.Errorf("tools saw %v, want [vi]", inTools.seen)
	}
	if v, _ := base.Lookup("variables.editor"); v != "vi" {
		t.Errorf("base context mutated: editor=%s", v)
	}
}

func TestExecute_ManifestRunsOnce(t *testing.T) {
	action := ok("once")
	m := &engine.Manifest{Name: "base", Actions: []engine.Action{action}}

	report, err := newDriver().Execute(context.Background(), []*engine.Manifest{m, m}, baseVars(nil), engine.ModeApply)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if action.runs != 1 {
		t.Errorf("action ran %d times, want 1", action.runs)
	}
	if len(report.Records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(report.Records))
	}
}

func TestExecute_Instrumentation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := &fakeMetrics{}
	history := &fakeRecorder{}

	ordered := []*engine.Manifest{
		{Name: "base", Actions: []engine.Action{ok("done"), fail("boom")}},
	}

	driver := newDriver(
		engine.WithTracer(provider.Tracer("test")),
		engine.WithMetrics(metrics),
		engine.WithRecorder(history),
		engine.WithContinueOnError(true),
	)
	report, _ := driver.Execute(context.Background(), ordered, baseVars(nil), engine.ModeApply)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}
	var run sdktrace.ReadOnlySpan
	actionSpans := 0
	for _, s := range spans {
		switch s.Name() {
		case "run.execute":
			run = s
		case "action.apply":
			actionSpans++
		default:
			t.Errorf("unexpected span %q", s.Name())
		}
	}
	if run == nil {
		t.Fatal("Expected a run.execute span")
	}
	if actionSpans != 2 {
		t.Errorf("Expected 2 action spans, got %d", actionSpans)
	}
	for _, s := range spans {
		if s.Name() == "action.apply" && s.Parent().SpanID() != run.SpanContext().SpanID() {
			t.Error("Expected action span to be a child of the run span")
		}
	}

	if want := []string{"stub/apply/succeeded", "stub/apply/failed"}; !slices.Equal(metrics.actions, want) {
		t.Errorf("action metrics = %v, want %v", metrics.actions, want)
	}
	if want := []string{"apply/partial"}; !slices.Equal(metrics.runs, want) {
		t.Errorf("run metrics = %v, want %v", metrics.runs, want)
	}

	if !slices.Equal(history.started, []string{report.RunID}) {
		t.Errorf("started = %v, want [%s]", history.started, report.RunID)
	}
	if len(history.actions) != 2 {
		t.Errorf("recorded %d actions, want 2", len(history.actions))
	}
	if !slices.Equal(history.finished, []engine.RunStatus{engine.RunStatusPartial}) {
		t.Errorf("finished = %v", history.finished)
	}
}

func TestExecute_RecorderFailureDoesNotFailRun(t *testing.T) {
	history := &fakeRecorder{err: errors.New("database is locked")}
	ordered := []*engine.Manifest{{Name: "base", Actions: []engine.Action{ok("done")}}}

	report, err := newDriver(engine.WithRecorder(history)).
		Execute(context.Background(), ordered, baseVars(nil), engine.ModeApply)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Status != engine.RunStatusSucceeded {
		t.Errorf("Status = %s, want succeeded", report.Status)
	}
}

func TestExecute_PackageManifests(t *testing.T) {
	loader := manifests.NewLoader()
	base, err := loader.Parse([]byte(`
actions:
  - action: package.install
    name: git
  - action: package.install
    list: ["{{ .variables.shell }}", curl]
`), "base.yaml", "base")
	if err != nil {
		t.Fatalf("Parse(base) failed: %v", err)
	}
	tools, err := loader.Parse([]byte(`
depends: [base]
actions:
  - action: package.install
    provider: fake
    name: ripgrep
`), "tools.yaml", "tools")
	if err != nil {
		t.Fatalf("Parse(tools) failed: %v", err)
	}

	ordered, err := engine.ResolveOrder([]*engine.Manifest{tools, base})
	if err != nil {
		t.Fatalf("ResolveOrder failed: %v", err)
	}

	t.Run("dry-run", func(t *testing.T) {
		fake := enginetest.NewFakeProvider("fake")
		driver := engine.NewDriver(enginetest.NewRegistry(fake), processtest.NewFakeRunner())

		report, err := driver.Execute(context.Background(), ordered, baseVars(map[string]string{"shell": "zsh"}), engine.ModeDryRun)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		want := []string{"Install git from fake", "Install zsh, curl from fake", "Install ripgrep from fake"}
		if got := report.Messages(); !slices.Equal(got, want) {
			t.Errorf("Messages = %v, want %v", got, want)
		}
		if len(fake.Calls()) != 0 {
			t.Errorf("Expected no provider calls in dry-run, got %v", fake.Calls())
		}
	})

	t.Run("apply", func(t *testing.T) {
		fake := enginetest.NewFakeProvider("fake")
		driver := engine.NewDriver(enginetest.NewRegistry(fake), processtest.NewFakeRunner())

		report, err := driver.Execute(context.Background(), ordered, baseVars(map[string]string{"shell": "zsh"}), engine.ModeApply)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		for _, msg := range report.Messages() {
			if msg != actions.InstallSucceeded {
				t.Errorf("message = %q, want %q", msg, actions.InstallSucceeded)
			}
		}
		want := [][]string{{"git"}, {"zsh", "curl"}, {"ripgrep"}}
		got := fake.Installed()
		if len(got) != len(want) {
			t.Fatalf("Installed = %v, want %v", got, want)
		}
		for i := range want {
			if !slices.Equal(got[i], want[i]) {
				t.Errorf("Installed[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("install failure", func(t *testing.T) {
		fake := enginetest.NewFakeProvider("fake")
		fake.InstallErr = errors.New("E: Unable to locate package git")
		driver := engine.NewDriver(enginetest.NewRegistry(fake), processtest.NewFakeRunner())

		report, err := driver.Execute(context.Background(), ordered, baseVars(map[string]string{"shell": "zsh"}), engine.ModeApply)
		if !errors.Is(err, engine.ErrInstall) {
			t.Fatalf("Expected install error, got %v", err)
		}
		if report.Pending != 2 {
			t.Errorf("Pending = %d, want 2", report.Pending)
		}
		if got := report.Failures()[0].Err.Error(); got != "E: Unable to locate package git" {
			t.Errorf("failure message = %q", got)
		}
	})

	t.Run("undefined variable", func(t *testing.T) {
		fake := enginetest.NewFakeProvider("fake")
		driver := engine.NewDriver(enginetest.NewRegistry(fake), processtest.NewFakeRunner())

		_, err := driver.Execute(context.Background(), ordered, baseVars(nil), engine.ModeDryRun)
		if !errors.Is(err, engine.ErrTemplate) {
			t.Fatalf("Expected template error, got %v", err)
		}
		if fake.Called("install") {
			t.Error("Expected no install after a template error")
		}
	})
}
