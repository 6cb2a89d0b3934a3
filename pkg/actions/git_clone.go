package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// GitClone clones a repository unless the directory already holds one.
type GitClone struct {
	Repository string `yaml:"repository" json:"repository,omitempty" validate:"required"`
	Directory  string `yaml:"directory" json:"directory,omitempty" validate:"required"`
	Reference  string `yaml:"reference,omitempty" json:"reference,omitempty"`
}

// Kind implements engine.Action.
func (a *GitClone) Kind() string {
	return KindGitClone
}

// Describe implements engine.Action.
func (a *GitClone) Describe() string {
	return fmt.Sprintf("clone %s", a.Repository)
}

func (a *GitClone) resolve(rc *engine.RunContext) (repo, dir, ref string, cloned bool, err error) {
	fields, err := renderAll(rc, []string{a.Repository, a.Reference})
	if err != nil {
		return "", "", "", false, err
	}
	repo, ref = fields[0], fields[1]

	dir, err = renderPath(rc, a.Directory)
	if err != nil {
		return "", "", "", false, err
	}

	_, err = os.Stat(filepath.Join(dir, ".git"))
	switch {
	case err == nil:
		return repo, dir, ref, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return repo, dir, ref, false, nil
	default:
		return "", "", "", false, actionError("failed to stat %s", err, dir)
	}
}

// DryRun implements engine.Action.
func (a *GitClone) DryRun(_ context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	repo, dir, _, cloned, err := a.resolve(rc)
	if err != nil {
		return nil, err
	}
	if cloned {
		return &engine.ActionResult{Message: fmt.Sprintf("Repository already cloned at %s", dir)}, nil
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Clone %s into %s", repo, dir)}, nil
}

// Run implements engine.Action.
func (a *GitClone) Run(ctx context.Context, _ *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	repo, dir, ref, cloned, err := a.resolve(rc)
	if err != nil {
		return nil, err
	}
	if cloned {
		return &engine.ActionResult{Message: fmt.Sprintf("Repository already cloned at %s", dir)}, nil
	}

	args := []string{"clone"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, repo, dir)

	if _, err := rc.Runner.Run(ctx, process.Command{Name: "git", Args: args}); err != nil {
		return nil, actionError("failed to clone %s", err, repo)
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Cloned %s into %s", repo, dir)}, nil
}
