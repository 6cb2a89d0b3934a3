package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/openfroyo/homestead/pkg/engine"
)

const defaultDirMode os.FileMode = 0o755

// DirectoryCreate ensures a directory exists.
type DirectoryCreate struct {
	Path  string `yaml:"path" json:"path,omitempty" validate:"required"`
	Chmod string `yaml:"chmod,omitempty" json:"chmod,omitempty"`
}

// Kind implements engine.Action.
func (a *DirectoryCreate) Kind() string {
	return KindDirectoryCreate
}

// Describe implements engine.Action.
func (a *DirectoryCreate) Describe() string {
	return "create directory " + a.Path
}

func (a *DirectoryCreate) resolve(rc *engine.RunContext) (string, os.FileMode, bool, error) {
	path, err := renderPath(rc, a.Path)
	if err != nil {
		return "", 0, false, err
	}
	mode, err := parseMode(a.Chmod, defaultDirMode)
	if err != nil {
		return "", 0, false, err
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return path, mode, false, nil
	case err != nil:
		return "", 0, false, actionError("failed to stat %s", err, path)
	case !info.IsDir():
		return "", 0, false, actionError("%s exists and is not a directory", nil, path)
	}
	return path, mode, true, nil
}

// DryRun implements engine.Action.
func (a *DirectoryCreate) DryRun(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	path, _, exists, err := a.resolve(rc)
	if err != nil {
		return nil, err
	}
	if exists {
		return &engine.ActionResult{Message: fmt.Sprintf("Directory %s already exists", path)}, nil
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Create directory %s", path)}, nil
}

// Run implements engine.Action.
func (a *DirectoryCreate) Run(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	path, mode, exists, err := a.resolve(rc)
	if err != nil {
		return nil, err
	}
	if exists {
		if a.Chmod != "" {
			if err := os.Chmod(path, mode); err != nil {
				return nil, actionError("failed to chmod %s", err, path)
			}
		}
		return &engine.ActionResult{Message: fmt.Sprintf("Directory %s already exists", path)}, nil
	}

	if err := os.MkdirAll(path, mode); err != nil {
		return nil, actionError("failed to create %s", err, path)
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Created directory %s", path)}, nil
}
