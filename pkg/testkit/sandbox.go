package testkit

import (
	"context"
	"sync"

	"guildbot/pkg/sandbox"
)

// StubRunner implements sandbox.Runner with a canned result and captures the
// last invocation. Set RunFunc for per-call behavior instead.
type StubRunner struct {
	Result  sandbox.Result
	Err     error
	RunFunc func(ctx context.Context, cmd []string, opts *sandbox.Opts) (sandbox.Result, error)

	mu       sync.Mutex
	lastCmd  []string
	lastOpts sandbox.Opts
	calls    int
}

// Run captures the invocation and returns the configured result.
func (r *StubRunner) Run(ctx context.Context, cmd []string, opts *sandbox.Opts) (sandbox.Result, error) {
	r.mu.Lock()
	r.lastCmd = append([]string(nil), cmd...)
	if opts != nil {
		r.lastOpts = *opts
	}
	r.calls++
	r.mu.Unlock()

	if r.RunFunc != nil {
		return r.RunFunc(ctx, cmd, opts)
	}
	return r.Result, r.Err
}

// Name identifies the stub in logs.
func (r *StubRunner) Name() sandbox.RunnerType {
	return sandbox.RunnerType("stub")
}

// Available always reports true.
func (r *StubRunner) Available() bool {
	return true
}

// LastCmd returns the command of the most recent Run call.
func (r *StubRunner) LastCmd() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lastCmd...)
}

// LastOpts returns the options of the most recent Run call.
func (r *StubRunner) LastOpts() sandbox.Opts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOpts
}

// Calls returns how many times Run was invoked.
func (r *StubRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
