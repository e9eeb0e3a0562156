package repack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner runs an external command.
type Runner interface {
	// Run executes name with args, feeding stdin (may be nil) and writing
	// standard output to stdout.
	Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	// Name is the executable.
	Name string

	// Args are the command arguments.
	Args []string

	// Stderr is the captured standard error, trimmed.
	Stderr string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Cause)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &CommandError{Name: name, Args: args, Stderr: strings.TrimSpace(stderr.String()), Cause: err}
	}
	return nil
}
