package zos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one external program invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

// String renders the command as a copy-pasteable shell line.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		q, err := syntax.Quote(p, syntax.LangPOSIX)
		if err != nil {
			q = p
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Output is the captured result of a finished program.
type Output struct {
	RC     int
	Stdout string
	Stderr string
}

// Runner executes external programs. A non-zero return code is reported in
// Output.RC, not as an error; an error means the program could not be run.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// CommandError describes a utility that finished with a non-zero return code.
type CommandError struct {
	Program string
	RC      int
	Stdout  string
	Stderr  string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed with rc=%d", e.Program, e.RC)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func commandError(program string, out Output) *CommandError {
	return &CommandError{Program: program, RC: out.RC, Stdout: out.Stdout, Stderr: out.Stderr}
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner that logs every invocation at debug level.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run blocks until the program exits.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("running %s: %w", c.Name, err)
		}
		out.RC = exitErr.ExitCode()
	}

	r.logger.Debug("utility finished",
		"command", c.String(),
		"rc", out.RC,
		"stdout_bytes", len(out.Stdout),
		"stderr_bytes", len(out.Stderr),
	)
	return out, nil
}
