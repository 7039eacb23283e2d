// SPDX-License-Identifier: MPL-2.0

// Package buildscript runs the per-package build scripts named in build lists.
//
// Commands are executed through an embedded POSIX shell interpreter so the
// same invocation works on every host, with the script's own folder as the
// working directory.
package buildscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/tpkg/tpkg/internal/buildlist"
)

// DefaultInterpreter runs build scripts without user site-packages.
const DefaultInterpreter = "python3 -s"

var (
	// ErrScriptNotFound is returned when the build script does not exist.
	ErrScriptNotFound = errors.New("build script not found")

	// ErrScriptFailed is the sentinel wrapped by ExitError.
	ErrScriptFailed = errors.New("build script failed")
)

type (
	// Runner executes build commands.
	Runner struct {
		interpreter string
		stdout      io.Writer
		stderr      io.Writer
		env         []string
		logger      *log.Logger
	}

	// Option configures a Runner.
	Option func(*Runner)

	// ExitError reports a non-zero exit status.
	ExitError struct {
		Script string
		Code   int
	}
)

func (e *ExitError) Error() string {
	return fmt.Sprintf("build script %s exited with status %d", e.Script, e.Code)
}

// Unwrap returns ErrScriptFailed.
func (e *ExitError) Unwrap() error { return ErrScriptFailed }

// WithInterpreter sets the command prefix placed before the script path.
// An empty interpreter executes the script directly.
func WithInterpreter(cmd string) Option {
	return func(r *Runner) { r.interpreter = strings.TrimSpace(cmd) }
}

// WithStdIO sets where script output goes.
func WithStdIO(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv replaces the inherited environment.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner using DefaultInterpreter and the process stdio.
func New(opts ...Option) *Runner {
	r := &Runner{
		interpreter: DefaultInterpreter,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		env:         os.Environ(),
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CommandLine renders the shell command that runs cmd.
func (r *Runner) CommandLine(cmd buildlist.Command) (string, error) {
	words := make([]string, 0, len(cmd.Args)+2)
	if r.interpreter != "" {
		words = append(words, r.interpreter)
	}
	for _, w := range append([]string{cmd.Script}, cmd.Args...) {
		quoted, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quoting %q: %w", w, err)
		}
		words = append(words, quoted)
	}
	return strings.Join(words, " "), nil
}

// Run executes cmd in the folder containing its script.
func (r *Runner) Run(ctx context.Context, cmd buildlist.Command) error {
	if _, err := os.Stat(cmd.Script); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrScriptNotFound, cmd.Script)
		}
		return fmt.Errorf("checking build script: %w", err)
	}

	line, err := r.CommandLine(cmd)
	if err != nil {
		return err
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(line), "build")
	if err != nil {
		return fmt.Errorf("failed to parse build command: %w", err)
	}

	runner, err := interp.New(
		interp.Dir(filepath.Dir(cmd.Script)),
		interp.Env(expand.ListEnviron(r.env...)),
		interp.StdIO(nil, r.stdout, r.stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	r.logger.Info("running build script", "command", line)
	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return &ExitError{Script: cmd.Script, Code: int(exitStatus)}
		}
		return fmt.Errorf("build script execution failed: %w", err)
	}
	return nil
}
