package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// CommandRun runs an arbitrary command. The engine cannot make it
// idempotent; that is up to the manifest author.
type CommandRun struct {
	Command    string            `yaml:"command" json:"command,omitempty" validate:"required"`
	Args       []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Dir        string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Privileged bool              `yaml:"privileged,omitempty" json:"privileged,omitempty"`
}

// Kind implements engine.Action.
func (a *CommandRun) Kind() string {
	return KindCommandRun
}

// Describe implements engine.Action.
func (a *CommandRun) Describe() string {
	return strings.TrimSpace("run " + a.Command + " " + strings.Join(a.Args, " "))
}

func (a *CommandRun) command(m *engine.Manifest, rc *engine.RunContext) (process.Command, error) {
	name, err := render(rc, a.Command)
	if err != nil {
		return process.Command{}, err
	}
	args, err := renderAll(rc, a.Args)
	if err != nil {
		return process.Command{}, err
	}

	dir := m.Dir()
	if a.Dir != "" {
		if dir, err = renderPath(rc, a.Dir); err != nil {
			return process.Command{}, err
		}
	}

	keys := make([]string, 0, len(a.Env))
	for k := range a.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := render(rc, a.Env[k])
		if err != nil {
			return process.Command{}, err
		}
		env = append(env, k+"="+v)
	}

	return process.Command{
		Name:       name,
		Args:       args,
		Dir:        dir,
		Env:        env,
		Privileged: a.Privileged,
	}, nil
}

// DryRun implements engine.Action.
func (a *CommandRun) DryRun(_ context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	cmd, err := a.command(m, rc)
	if err != nil {
		return nil, err
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Run %s", cmd)}, nil
}

// Run implements engine.Action.
func (a *CommandRun) Run(ctx context.Context, m *engine.Manifest, rc *engine.RunContext) (*engine.ActionResult, error) {
	cmd, err := a.command(m, rc)
	if err != nil {
		return nil, err
	}
	if _, err := rc.Runner.Run(ctx, cmd); err != nil {
		return nil, actionError("command %s failed", err, cmd)
	}
	return &engine.ActionResult{Message: fmt.Sprintf("Ran %s", cmd)}, nil
}
