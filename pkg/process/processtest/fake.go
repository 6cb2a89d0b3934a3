// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/homestead/pkg/process"
)

// Response is the scripted outcome for a command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// FakeRunner records every command and answers from a table keyed by
// command-line prefix. Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	responses []scripted
	commands  []process.Command
	paths     map[string]bool
}

type scripted struct {
	prefix   string
	response Response
}

// NewFakeRunner creates a runner where the given executables are on PATH.
func NewFakeRunner(onPath ...string) *FakeRunner {
	paths := make(map[string]bool)
	for _, p := range onPath {
		paths[p] = true
	}
	return &FakeRunner{paths: paths}
}

// On scripts the response for commands whose rendered line starts with prefix.
// Later calls take precedence over earlier ones.
func (f *FakeRunner) On(prefix string, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append([]scripted{{prefix: prefix, response: resp}}, f.responses...)
	return f
}

// AddPath marks an executable as present.
func (f *FakeRunner) AddPath(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[name] = true
}

// LookPath implements process.Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("executable file not found in $PATH: %s", name)
}

// Run implements process.Runner.
func (f *FakeRunner) Run(_ context.Context, cmd process.Command) (*process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, cmd)
	line := cmd.String()

	for _, s := range f.responses {
		if !strings.HasPrefix(line, s.prefix) {
			continue
		}
		result := &process.Result{
			Stdout:   s.response.Stdout,
			Stderr:   s.response.Stderr,
			ExitCode: s.response.ExitCode,
		}
		if s.response.Err != nil {
			return result, s.response.Err
		}
		if s.response.ExitCode != 0 {
			return result, &process.ExitError{
				Command:  line,
				ExitCode: s.response.ExitCode,
				Stderr:   s.response.Stderr,
			}
		}
		return result, nil
	}

	return &process.Result{}, nil
}

// Commands returns the rendered command lines executed so far.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		lines = append(lines, c.String())
	}
	return lines
}

// Ran reports whether any executed command line starts with prefix.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, line := range f.Commands() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Command returns the first executed command whose rendered line starts
// with prefix.
func (f *FakeRunner) Command(prefix string) (process.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(c.String(), prefix) {
			return c, true
		}
	}
	return process.Command{}, false
}
