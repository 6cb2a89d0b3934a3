package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/homestead/pkg/engine"
)

// FileLink creates a symlink at To pointing at From.
type FileLink struct {
	// From is the link target, relative to the manifest's files directory
	// unless absolute.
	From string `yaml:"from" json:"from,omitempty" validate:"required"`

	// To is where the symlink is created.
	To string `yaml:"to" json:"to,omitempty" validate:"required"`
}

// Kind implements engine.Action.
func (a *FileLink) Kind() string {
	return KindFileLink
}

// Describe implements engine.Action.
func (a *FileLink) Describe() string {
	return fmt.Sprintf("link %s to %s", a.To, a.From)
}

type linkState int

const (
	linkMissing linkState = iota
	linkCorrect
	linkStale
)

func (a *FileLink) resolve(m *engine.Manifest, rc *engine.RunContext) (source, target string, state linkState, err error) {
	source, err = renderPath(rc, a.From)
	if err != nil {
		return "", "", 0, err
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(m.FilesDir(), source)
	}
	if abs, absErr := filepath.Abs(source); absErr == nil {
		source = abs
	}

	target, err = renderPath(rc, a.To)
	if err != nil {
		return "", "", 0, err
	}

	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return source, target, linkMissing, nil
	case err != nil:
		return "", "", 0, actionError("failed to stat %s", err, target)
	case info.Mode()&os.ModeSymlink == 0:
		return "", "", 0, actionError("%s exists and is not a symlink", nil, target)
	}

	current, err := os.Readlink(target)
	if err != nil {
		return "", "", 0, actionError("failed to read link %s", err, target)
	}
	if current == source {
		return source, target, linkCorrect, nil
	}
	return source, target, linkStale, nil
}

// DryRun implements engine.Action.
func (a *FileLink) DryRun(_ context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	source, target, state, err := a.resolve(m, rc)
	if err != nil {
		return nil, err
	}
	switch state {
	case linkCorrect:
		return &engine.ActionResult{Message: fmt.Sprintf("Link %s already points to %s", target, source)}, nil
	case linkStale:
		return &engine.ActionResult{Message: fmt.Sprintf("Relink %s to %s", target, source)}, nil
	default:
		return &engine.ActionResult{Message: fmt.Sprintf("Link %s to %s", target, source)}, nil
	}
}

// Run implements engine.Action. Only symlinks are ever replaced.
func (a *FileLink) Run(_ context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	source, target, state, err := a.resolve(m, rc)
	if err != nil {
		return nil, err
	}

	switch state {
	case linkCorrect:
		return &engine.ActionResult{Message: fmt.Sprintf("Link %s already points to %s", target, source)}, nil
	case linkStale:
		if err := os.Remove(target); err != nil {
			return nil, actionError("failed to remove stale link %s", err, target)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, actionError("failed to create %s", err, filepath.Dir(target))
	}
	if err := os.Symlink(source, target); err != nil {
		return nil, actionError("failed to link %s", err, target)
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Linked %s to %s", target, source)}, nil
}
