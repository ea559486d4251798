// Package runner wraps external process execution behind a narrow
// interface so callers can be tested without spawning real processes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs a command to completion and reports its exit code together
// with combined stdout/stderr. A non-nil error means the process could not
// be run at all; a nonzero exit code is not an error at this layer.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (int, []byte, error)
}

// ExecRunner runs commands with os/exec. The calling goroutine blocks
// until the process exits.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), output, nil
		}
		return -1, output, fmt.Errorf("running %s %s: %w", name, strings.Join(args, " "), err)
	}
	return 0, output, nil
}
