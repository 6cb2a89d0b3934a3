package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"

	"github.com/openfroyo/homestead/pkg/engine"
)

const defaultFileMode os.FileMode = 0o644

// FileCopy copies a file from the manifest's files directory to a target.
type FileCopy struct {
	// From is relative to the manifest's files directory.
	From string `yaml:"from" json:"from,omitempty" validate:"required"`

	// To is the destination path; ~ expands to the home directory.
	To string `yaml:"to" json:"to,omitempty" validate:"required"`

	// Chmod is an octal permission string. Defaults to 0644.
	Chmod string `yaml:"chmod,omitempty" json:"chmod,omitempty"`

	// Template renders the file contents through the variable context.
	Template bool `yaml:"template,omitempty" json:"template,omitempty"`
}

// Kind implements engine.Action.
func (a *FileCopy) Kind() string {
	return KindFileCopy
}

// Describe implements engine.Action.
func (a *FileCopy) Describe() string {
	return fmt.Sprintf("copy %s to %s", a.From, a.To)
}

// copyPlan is the resolved form of a FileCopy.
type copyPlan struct {
	source  string
	target  string
	content []byte
	mode    os.FileMode

	// current is the target content, nil when the target does not exist.
	current     []byte
	currentMode os.FileMode
}

func (p *copyPlan) upToDate() bool {
	return p.current != nil && bytes.Equal(p.current, p.content) && p.currentMode == p.mode
}

func (a *FileCopy) plan(m *engine.Manifest, rc *engine.RunContext) (*copyPlan, error) {
	from, err := render(rc, a.From)
	if err != nil {
		return nil, err
	}
	to, err := renderPath(rc, a.To)
	if err != nil {
		return nil, err
	}
	mode, err := parseMode(a.Chmod, defaultFileMode)
	if err != nil {
		return nil, err
	}

	p := &copyPlan{source: filepath.Join(m.FilesDir(), from), target: to, mode: mode}

	p.content, err = os.ReadFile(p.source)
	if err != nil {
		return nil, actionError("failed to read %s", err, p.source)
	}
	if a.Template {
		rendered, err := render(rc, string(p.content))
		if err != nil {
			return nil, err
		}
		p.content = []byte(rendered)
	}

	info, err := os.Stat(to)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, actionError("target %s is a directory", nil, to)
		}
		p.current, err = os.ReadFile(to)
		if err != nil {
			return nil, actionError("failed to read %s", err, to)
		}
		p.currentMode = info.Mode().Perm()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, actionError("failed to stat %s", err, to)
	}

	return p, nil
}

// DryRun implements engine.Action. When the target exists the message
// carries a unified diff of the pending change.
func (a *FileCopy) DryRun(_ context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	p, err := a.plan(m, rc)
	if err != nil {
		return nil, err
	}

	switch {
	case p.upToDate():
		return &engine.ActionResult{Message: fmt.Sprintf("File %s is up to date", p.target)}, nil
	case p.current == nil:
		return &engine.ActionResult{Message: fmt.Sprintf("Copy %s to %s", p.source, p.target)}, nil
	}

	msg := fmt.Sprintf("Copy %s to %s", p.source, p.target)
	if p.currentMode != p.mode {
		msg += fmt.Sprintf(" (mode %04o -> %04o)", p.currentMode, p.mode)
	}
	if diff := udiff.Unified(p.target, p.source, string(p.current), string(p.content)); diff != "" {
		msg += "\n" + diff
	}
	return &engine.ActionResult{Message: msg}, nil
}

// Run implements engine.Action. The write is skipped when content and mode
// already match.
func (a *FileCopy) Run(_ context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	p, err := a.plan(m, rc)
	if err != nil {
		return nil, err
	}
	if p.upToDate() {
		return &engine.ActionResult{Message: fmt.Sprintf("File %s is up to date", p.target)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(p.target), 0o755); err != nil {
		return nil, actionError("failed to create %s", err, filepath.Dir(p.target))
	}
	if err := os.WriteFile(p.target, p.content, p.mode); err != nil {
		return nil, actionError("failed to write %s", err, p.target)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(p.target, p.mode); err != nil {
		return nil, actionError("failed to chmod %s", err, p.target)
	}

	return &engine.ActionResult{Message: fmt.Sprintf("Copied %s to %s", p.source, p.target)}, nil
}
