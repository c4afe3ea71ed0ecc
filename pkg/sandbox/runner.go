// Package sandbox provides isolated execution of generated programs, either
// as a plain subprocess or inside a resource-limited container.
package sandbox

import (
	"context"
	"time"
)

// RunnerType identifies a runner implementation.
type RunnerType string

// Runner type constants.
const (
	RunnerTypeLocal  RunnerType = "local"
	RunnerTypeDocker RunnerType = "docker"
)

// Runner executes one command in an isolated environment.
type Runner interface {
	// Run executes a command with the given options and returns the result.
	// A non-zero exit code is reported in the result, not as an error.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the runner type for logging.
	Name() RunnerType

	// Available reports whether this runner can be used in the current environment.
	Available() bool
}

// Opts contains options for sandbox execution.
//
//nolint:govet // Configuration struct, logical grouping preferred
type Opts struct {
	// Env contains environment variables (KEY=VALUE format).
	Env []string

	// ResourceLimits contains container resource constraints.
	ResourceLimits *ResourceLimits

	// Timeout is the watchdog wall clock for the run.
	Timeout time.Duration

	// WorkDir is mounted as the working directory.
	WorkDir string

	// Network selects the container network ("none" cuts the snippet off
	// from everything, including the platform API).
	Network string
}

// ResourceLimits defines resource constraints for containerized execution.
type ResourceLimits struct {
	// CPUs is the number of CPU cores to allocate, e.g. "1" or "1.5".
	CPUs string

	// Memory is the memory limit, e.g. "512m".
	Memory string

	// PIDs is the maximum number of processes/threads.
	PIDs int64
}

// Result contains the outcome of a sandbox run.
type Result struct {
	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string

	// RunnerUsed indicates which runner produced this result.
	RunnerUsed RunnerType

	// Duration is the wall-clock runtime.
	Duration time.Duration

	// ExitCode is the process exit code; -1 when the process never started.
	ExitCode int

	// TimedOut is set when the watchdog killed the run.
	TimedOut bool
}
