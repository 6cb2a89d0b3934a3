package actions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/engine/enginetest"
	"github.com/openfroyo/homestead/pkg/process/processtest"
)

func TestCommandRun(t *testing.T) {
	rc, runner := newRunContext(t, enginetest.NewRegistry(), map[string]string{"shell": "zsh"})
	m := &engine.Manifest{Name: "shell", Path: "/manifests/shell.yaml"}
	action := &CommandRun{
		Command: "chsh",
		Args:    []string{"-s", "/bin/{{ .variables.shell }}"},
		Env:     map[string]string{"B": "2", "A": "1"},
	}
	ctx := context.Background()

	result, err := action.DryRun(ctx, m, rc)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Message != "Run chsh -s /bin/zsh" {
		t.Errorf("DryRun() message = %q", result.Message)
	}
	if len(runner.Commands()) != 0 {
		t.Fatalf("dry-run executed commands: %v", runner.Commands())
	}

	if _, err := action.Run(ctx, m, rc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !runner.Ran("chsh -s /bin/zsh") {
		t.Errorf("commands = %v", runner.Commands())
	}

	cmd, err := action.command(m, rc)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Dir != "/manifests" {
		t.Errorf("default dir = %q, want manifest dir", cmd.Dir)
	}
	if strings.Join(cmd.Env, ",") != "A=1,B=2" {
		t.Errorf("env = %v", cmd.Env)
	}
}

func TestCommandRunFailure(t *testing.T) {
	rc, runner := newRunContext(t, enginetest.NewRegistry(), nil)
	runner.On("false", processtest.Response{ExitCode: 1, Stderr: "nope"})

	_, err := (&CommandRun{Command: "false"}).Run(context.Background(), &engine.Manifest{}, rc)
	if err == nil {
		t.Fatal("expected error")
	}
	if engine.KindOf(err) != engine.KindAction {
		t.Errorf("KindOf() = %s", engine.KindOf(err))
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error = %q, want command diagnostics", err)
	}
}

func TestGitClone(t *testing.T) {
	rc, runner := newRunContext(t, enginetest.NewRegistry(), nil)
	dir := filepath.Join(t.TempDir(), "dotfiles")
	action := &GitClone{Repository: "https://github.com/example/dotfiles", Directory: dir, Reference: "main"}
	ctx := context.Background()
	m := &engine.Manifest{Name: "git"}

	result, err := action.DryRun(ctx, m, rc)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Message != "Clone https://github.com/example/dotfiles into "+dir {
		t.Errorf("DryRun() message = %q", result.Message)
	}

	if _, err := action.Run(ctx, m, rc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !runner.Ran("git clone --branch main https://github.com/example/dotfiles " + dir) {
		t.Errorf("commands = %v", runner.Commands())
	}

	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err = action.Run(ctx, m, rc)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !strings.Contains(result.Message, "already cloned") {
		t.Errorf("second Run() message = %q", result.Message)
	}
	if len(runner.Commands()) != 1 {
		t.Errorf("clone ran again: %v", runner.Commands())
	}
}
