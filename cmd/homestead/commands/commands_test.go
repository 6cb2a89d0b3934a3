package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

type workspace struct {
	dir       string
	manifests string
	config    string
	target    string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// setupWorkspace creates two manifests, base and tools (depending on base),
// that each create a directory under target.
func setupWorkspace(t *testing.T) *workspace {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	ws := &workspace{
		dir:       dir,
		manifests: filepath.Join(dir, "manifests"),
		config:    filepath.Join(dir, "Homestead.yaml"),
		target:    filepath.Join(dir, "target"),
	}

	writeFile(t, filepath.Join(ws.manifests, "base.yaml"), fmt.Sprintf(`
actions:
  - action: directory.create
    path: %s
`, ws.target))
	writeFile(t, filepath.Join(ws.manifests, "tools.yaml"), fmt.Sprintf(`
depends: [base]
actions:
  - action: directory.create
    path: %s
`, filepath.Join(ws.target, "tools")))
	writeFile(t, ws.config, fmt.Sprintf(`
manifests:
  - %s
state_path: %s
log:
  level: error
`, ws.manifests, filepath.Join(dir, "history.db")))

	return ws
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	color.NoColor = true

	cmd := newRootCommand("1.2.3", "abc123", "2026-01-02")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func assertContains(t *testing.T, output string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Errorf("output missing %q:\n%s", w, output)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	assertContains(t, out, "homestead 1.2.3", "commit: abc123", "built:  2026-01-02")
}

func TestGraphCommand(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "graph", "--config", ws.config)
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	assertContains(t, out, "digraph Manifests {", `"base" -> "tools";`)
}

func TestApplyDryRun(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "apply", "--dry-run", "--config", ws.config)
	if err != nil {
		t.Fatalf("apply --dry-run failed: %v\n%s", err, out)
	}
	assertContains(t, out,
		"Dry run: no changes were made",
		"[dry-run] Create directory "+ws.target,
		"dry-run succeeded: 2 succeeded, 0 failed, 0 pending",
	)
	if _, err := os.Stat(ws.target); !os.IsNotExist(err) {
		t.Errorf("dry run created %s", ws.target)
	}
}

func TestApplyAndHistory(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "history", "--config", ws.config)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	assertContains(t, out, "No runs recorded.")

	out, err = run(t, "apply", "--config", ws.config)
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	assertContains(t, out,
		"ok Created directory "+ws.target,
		"apply succeeded: 2 succeeded, 0 failed, 0 pending",
	)
	if info, err := os.Stat(filepath.Join(ws.target, "tools")); err != nil || !info.IsDir() {
		t.Fatalf("expected %s/tools to be created: %v", ws.target, err)
	}

	out, err = run(t, "apply", "--config", ws.config)
	if err != nil {
		t.Fatalf("second apply failed: %v\n%s", err, out)
	}
	assertContains(t, out, "Directory "+ws.target+" already exists")

	out, err = run(t, "history", "--config", ws.config, "--limit", "1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 run with --limit 1, got:\n%s", out)
	}
	assertContains(t, out, "apply", "succeeded", "2 executed, 0 failed, 0 pending")

	runID := strings.Fields(lines[0])[0]
	out, err = run(t, "history", "--config", ws.config, "--run", runID)
	if err != nil {
		t.Fatalf("history --run failed: %v", err)
	}
	assertContains(t, out, "base[0] directory.create ok", "tools[0] directory.create ok")
}

func TestApplyOnly(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "apply", "--config", ws.config, "--only", "base")
	if err != nil {
		t.Fatalf("apply --only failed: %v\n%s", err, out)
	}
	assertContains(t, out, "apply succeeded: 1 succeeded")
	if _, err := os.Stat(filepath.Join(ws.target, "tools")); !os.IsNotExist(err) {
		t.Error("expected tools manifest to be skipped")
	}

	if _, err := run(t, "apply", "--config", ws.config, "--only", "missing"); err == nil {
		t.Error("expected error for unknown manifest")
	}
}

func TestApplyFailure(t *testing.T) {
	ws := setupWorkspace(t)
	writeFile(t, filepath.Join(ws.manifests, "broken.yaml"), fmt.Sprintf(`
depends: [tools]
actions:
  - action: file.copy
    from: missing.txt
    to: %s
  - action: directory.create
    path: %s
`, filepath.Join(ws.dir, "copied.txt"), filepath.Join(ws.dir, "after")))

	out, err := run(t, "apply", "--config", ws.config)
	if err == nil {
		t.Fatalf("expected apply to fail:\n%s", out)
	}
	assertContains(t, out, "FAILED file.copy", "1 action(s) not attempted", "apply failed")
	if _, err := os.Stat(filepath.Join(ws.dir, "after")); !os.IsNotExist(err) {
		t.Error("expected the run to abort before the next action")
	}

	out, err = run(t, "apply", "--config", ws.config, "--continue-on-error")
	if err == nil {
		t.Fatalf("expected apply to report the failure:\n%s", out)
	}
	assertContains(t, out, "apply partial")
	if _, err := os.Stat(filepath.Join(ws.dir, "after")); err != nil {
		t.Errorf("expected the run to continue: %v", err)
	}
}

func TestManifestsFlag(t *testing.T) {
	ws := setupWorkspace(t)
	other := filepath.Join(ws.dir, "other")
	writeFile(t, filepath.Join(other, "solo.yaml"), fmt.Sprintf(`
actions:
  - action: directory.create
    path: %s
`, filepath.Join(ws.dir, "solo")))

	out, err := run(t, "apply", "--dry-run", "--config", ws.config, "-m", other)
	if err != nil {
		t.Fatalf("apply -m failed: %v\n%s", err, out)
	}
	assertContains(t, out, "solo", "dry-run succeeded: 1 succeeded")
	if strings.Contains(out, "tools") {
		t.Errorf("expected configured manifests to be replaced:\n%s", out)
	}
}

func TestProvidersCommand(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "providers", "--config", ws.config)
	if err != nil {
		t.Fatalf("providers failed: %v", err)
	}
	assertContains(t, out, "Platform:", "aptitude", "dnf", "homebrew", "winget", "(aliases: apt)")
}

func TestInvalidConfig(t *testing.T) {
	ws := setupWorkspace(t)
	writeFile(t, ws.config, "manifests: {not: a list}\n")

	if _, err := run(t, "apply", "--config", ws.config); err == nil {
		t.Error("expected error for unparsable config")
	}
}

func TestApplyPolicyViolation(t *testing.T) {
	ws := setupWorkspace(t)
	writeFile(t, filepath.Join(ws.manifests, "dotfiles.yaml"), fmt.Sprintf(`
depends: [base]
actions:
  - action: git.clone
    repository: http://example.com/dotfiles.git
    directory: %s
`, filepath.Join(ws.target, "dotfiles")))

	out, err := run(t, "apply", "--config", ws.config)
	if err == nil {
		t.Fatalf("expected policy error\n%s", out)
	}
	assertContains(t, out, "DENY dotfiles[0] git.clone", "(insecure-transport)")
	assertContains(t, err.Error(), "insecure-transport")
	if _, statErr := os.Stat(ws.target); !os.IsNotExist(statErr) {
		t.Errorf("expected no action to run, stat error = %v", statErr)
	}

	out, err = run(t, "policies", "check", "--config", ws.config)
	if err == nil {
		t.Fatalf("expected policies check to fail\n%s", out)
	}
	assertContains(t, out, "DENY dotfiles[0] git.clone")

	out, err = run(t, "policies", "check", "--only", "tools", "--config", ws.config)
	if err != nil {
		t.Fatalf("policies check --only failed: %v\n%s", err, out)
	}
	assertContains(t, out, "No policy violations in 2 manifest(s)")
}

func TestConfiguredPolicies(t *testing.T) {
	ws := setupWorkspace(t)
	policies := filepath.Join(ws.dir, "policies")
	writeFile(t, filepath.Join(policies, "no-tools.rego"), `# Tools must be installed by hand.
# severity: error
package homestead.local.tools

import rego.v1

deny contains "tools are managed elsewhere" if {
	input.manifest.name == "tools"
}
`)
	writeFile(t, ws.config, fmt.Sprintf(`
manifests:
  - %s
policies:
  - %s
disable_policies: [privileged-command]
state_path: %s
log:
  level: error
`, ws.manifests, policies, filepath.Join(ws.dir, "history.db")))

	out, err := run(t, "policies", "--config", ws.config)
	if err != nil {
		t.Fatalf("policies failed: %v\n%s", err, out)
	}
	assertContains(t, out,
		"insecure-transport",
		"no-tools",
		"Tools must be installed by hand.",
		filepath.Join(policies, "no-tools.rego"),
		"built-in",
	)
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "privileged-command") && !strings.Contains(line, "disabled") {
			t.Errorf("expected privileged-command to be disabled: %q", line)
		}
	}

	out, err = run(t, "apply", "--config", ws.config)
	if err == nil {
		t.Fatalf("expected policy error\n%s", out)
	}
	assertContains(t, out, "DENY tools[0] directory.create: tools are managed elsewhere (no-tools)")

	out, err = run(t, "apply", "--skip-policy", "--config", ws.config)
	if err != nil {
		t.Fatalf("apply --skip-policy failed: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(ws.target, "tools")); err != nil {
		t.Errorf("expected tools directory: %v", err)
	}
}

func TestRequiresVersion(t *testing.T) {
	ws := setupWorkspace(t)
	writeFile(t, ws.config, fmt.Sprintf("requires: \">= 2.0\"\nmanifests: [%s]\nlog:\n  level: error\n", ws.manifests))

	_, err := run(t, "graph", "--config", ws.config)
	if err == nil {
		t.Fatal("expected version constraint error")
	}
	assertContains(t, err.Error(), "requires homestead >= 2.0, this is 1.2.3")
}

func TestConfigBesideManifests(t *testing.T) {
	ws := setupWorkspace(t)
	config := filepath.Join(ws.manifests, "Homestead.yaml")
	writeFile(t, config, fmt.Sprintf(`
manifests:
  - %s
state_path: %s
log:
  level: error
`, ws.manifests, filepath.Join(ws.dir, "history.db")))

	out, err := run(t, "graph", "--config", config)
	if err != nil {
		t.Fatalf("graph failed: %v\n%s", err, out)
	}
	assertContains(t, out, `"base" -> "tools";`)
	if strings.Contains(out, "Homestead") {
		t.Errorf("config file loaded as a manifest:\n%s", out)
	}
}

func TestOnlyStillResolvesEveryManifest(t *testing.T) {
	ws := setupWorkspace(t)
	writeFile(t, filepath.Join(ws.manifests, "orphan.yaml"), `
depends: [ghost]
actions: []
`)

	for _, args := range [][]string{
		{"apply", "--dry-run", "--only", "base"},
		{"graph", "--only", "base"},
	} {
		t.Run(args[0], func(t *testing.T) {
			out, err := run(t, append(args, "--config", ws.config)...)
			if err == nil {
				t.Fatalf("expected unknown dependency error\n%s", out)
			}
			assertContains(t, err.Error(), "ghost")
			if _, statErr := os.Stat(ws.target); !os.IsNotExist(statErr) {
				t.Errorf("expected nothing to run, stat error = %v", statErr)
			}
		})
	}
}

func TestDryRunLeavesNoHistory(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, "apply", "--dry-run", "--config", ws.config)
	if err != nil {
		t.Fatalf("apply --dry-run failed: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(ws.dir, "history.db")); !os.IsNotExist(err) {
		t.Errorf("dry run created the history database, stat error = %v", err)
	}
}
