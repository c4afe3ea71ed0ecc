package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// LocalRunner executes the program as a plain subprocess. No container
// isolation; the watchdog and the narrow credential are the only guards.
type LocalRunner struct{}

// NewLocalRunner creates a subprocess runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Name returns the runner type.
func (r *LocalRunner) Name() RunnerType {
	return RunnerTypeLocal
}

// Available returns true since subprocess execution always works.
func (r *LocalRunner) Available() bool {
	return true
}

// Run executes the command with the watchdog timeout applied. On expiry the
// process is killed by CommandContext and the result carries TimedOut.
func (r *LocalRunner) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		opts = &Opts{}
	}

	start := time.Now()

	execCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return Result{}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdoutBuf, stderrBuf strings.Builder
	execCmd.Stdout = &stdoutBuf
	execCmd.Stderr = &stderrBuf

	err := execCmd.Run()

	result := Result{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		Duration:   time.Since(start),
		RunnerUsed: r.Name(),
		TimedOut:   errors.Is(execCtx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is a result, not a run failure.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		if result.TimedOut {
			return result, nil
		}
		return result, fmt.Errorf("failed to start sandbox process: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}
