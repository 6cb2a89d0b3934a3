// Package process invokes external programs (package managers, git, shell
// commands) and captures their exit status and output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Command describes a single process invocation.
type Command struct {
	// Name is the executable to run.
	Name string

	// Args are the arguments passed to the executable.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds additional KEY=value pairs appended to the inherited environment.
	Env []string

	// Stdin is written to the process standard input when non-empty.
	Stdin string

	// Privileged runs the command through sudo when not already root.
	Privileged bool
}

// String renders the command line for logs and dry-run messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a process exits with a non-zero status.
// Its message is the diagnostic text the program printed.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, msg)
}

// Runner executes commands. Implementations must be safe to call
// sequentially from a single goroutine; no concurrency is required.
type Runner interface {
	// Run executes the command and blocks until it exits.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath reports the location of an executable on PATH.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates an ExecRunner that logs each invocation at debug level.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "process").Logger()}
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	name, args := c.Name, c.Args
	if c.Privileged && needsSudo() {
		if _, err := exec.LookPath("sudo"); err == nil {
			name, args = "sudo", append([]string{c.Name}, c.Args...)
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("command", c.String()).
		Bool("privileged", c.Privileged).
		Str("dir", c.Dir).
		Msg("Running command")

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug().
				Str("command", c.String()).
				Int("exit_code", result.ExitCode).
				Dur("duration", result.Duration).
				Msg("Command failed")
			return result, &ExitError{
				Command:  c.String(),
				ExitCode: result.ExitCode,
				Stderr:   diagnostic(result),
			}
		}
		return result, fmt.Errorf("failed to execute %s: %w", c.Name, err)
	}

	r.logger.Debug().
		Str("command", c.String()).
		Dur("duration", result.Duration).
		Msg("Command finished")

	return result, nil
}

// diagnostic prefers stderr but falls back to stdout, since several package
// managers report failures on stdout.
func diagnostic(r *Result) string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

func needsSudo() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return os.Geteuid() != 0
}
