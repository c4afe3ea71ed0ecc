package codemode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"guildbot/pkg/logx"
	"guildbot/pkg/metrics"
	"guildbot/pkg/sandbox"
	"guildbot/pkg/utils"
)

// DefaultSandboxTimeout is the watchdog deadline when config leaves it unset.
const DefaultSandboxTimeout = 2 * time.Minute

// ExecStatus tags an execution outcome. Exactly one per invocation.
type ExecStatus string

// Execution outcomes.
const (
	ExecSuccess ExecStatus = "success"
	ExecError   ExecStatus = "error"
	ExecTimeout ExecStatus = "timeout"
)

// ExecutionResult is the terminal outcome of one sandbox run.
type ExecutionResult struct {
	Status   ExecStatus
	Message  string
	Stack    string
	Logs     []string
	Errors   []string
	Duration time.Duration
}

// scriptResult is the JSON the generated program posts on stdout.
type scriptResult struct {
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	Stack      string   `json:"stack"`
	Logs       []string `json:"logs"`
	Errors     []string `json:"errors"`
	DurationMS int64    `json:"duration_ms"`
}

// Executor runs generated programs in an isolated worker, never in-process.
type Executor struct {
	runner  sandbox.Runner
	limits  *sandbox.ResourceLimits
	logger  *logx.Logger
	network string
	timeout time.Duration
}

// NewExecutor creates an executor over the given runner. timeout <= 0 selects
// the default watchdog deadline; limits and network apply only to runners
// that support them.
func NewExecutor(runner sandbox.Runner, timeout time.Duration, limits *sandbox.ResourceLimits, network string) *Executor {
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	return &Executor{
		runner:  runner,
		limits:  limits,
		logger:  logx.NewLogger("sandbox-exec"),
		network: network,
		timeout: timeout,
	}
}

// Execute writes the program into a fresh workspace, runs it under the
// watchdog, and resolves to exactly one of success, error, or timeout.
// The workspace is removed whichever way it resolves.
func (e *Executor) Execute(ctx context.Context, program string) ExecutionResult {
	workspace := filepath.Join(os.TempDir(), "guildbot-run-"+uuid.NewString())
	if err := os.MkdirAll(workspace, 0o700); err != nil {
		return e.record(ExecutionResult{
			Status:  ExecError,
			Message: fmt.Sprintf("create workspace: %v", err),
			Logs:    []string{},
			Errors:  []string{},
		})
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			e.logger.Warn("⚠️ Failed to remove workspace %s: %v", workspace, err)
		}
	}()

	if err := os.WriteFile(filepath.Join(workspace, "main.go"), []byte(program), 0o600); err != nil {
		return e.record(ExecutionResult{
			Status:  ExecError,
			Message: fmt.Sprintf("write program: %v", err),
			Logs:    []string{},
			Errors:  []string{},
		})
	}

	e.logger.Info("🚀 Executing task in %s via %s runner (timeout %s)", workspace, e.runner.Name(), e.timeout)

	opts := &sandbox.Opts{
		Timeout:        e.timeout,
		WorkDir:        workspace,
		Network:        e.network,
		ResourceLimits: e.limits,
	}
	res, err := e.runner.Run(ctx, []string{"go", "run", "main.go"}, opts)

	if res.TimedOut {
		e.logger.Warn("⏱️ Task hit the %s watchdog, isolate terminated", e.timeout)
		return e.record(ExecutionResult{
			Status:   ExecTimeout,
			Logs:     []string{},
			Errors:   []string{},
			Duration: res.Duration,
		})
	}
	if err != nil {
		return e.record(ExecutionResult{
			Status:   ExecError,
			Message:  fmt.Sprintf("sandbox startup failed: %v", err),
			Logs:     []string{},
			Errors:   []string{},
			Duration: res.Duration,
		})
	}

	return e.record(e.resolve(&res))
}

// resolve turns a finished run into an ExecutionResult from the program's
// posted result line, falling back to process-level evidence.
func (e *Executor) resolve(res *sandbox.Result) ExecutionResult {
	line, found := lastMarkerLine(res.Stdout)
	if !found {
		message := fmt.Sprintf("program exited with code %d without posting a result", res.ExitCode)
		if tail := strings.TrimSpace(res.Stderr); tail != "" {
			message += ": " + utils.TruncateString(tail, 800)
		}
		return ExecutionResult{
			Status:   ExecError,
			Message:  message,
			Logs:     []string{},
			Errors:   []string{},
			Duration: res.Duration,
		}
	}

	var posted scriptResult
	if err := json.Unmarshal([]byte(line), &posted); err != nil {
		return ExecutionResult{
			Status:   ExecError,
			Message:  fmt.Sprintf("program posted an unreadable result: %v", err),
			Logs:     []string{},
			Errors:   []string{},
			Duration: res.Duration,
		}
	}

	status := ExecStatus(posted.Type)
	if status != ExecSuccess && status != ExecError {
		status = ExecError
	}

	// The program measures the task itself; the runner's wall clock also
	// counts compilation. Prefer the task's own measurement.
	duration := time.Duration(posted.DurationMS) * time.Millisecond
	if duration <= 0 {
		duration = res.Duration
	}

	out := ExecutionResult{
		Status:   status,
		Message:  posted.Message,
		Stack:    posted.Stack,
		Logs:     posted.Logs,
		Errors:   posted.Errors,
		Duration: duration,
	}
	if out.Logs == nil {
		out.Logs = []string{}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return out
}

// record observes metrics and logs the resolution before returning it.
func (e *Executor) record(result ExecutionResult) ExecutionResult {
	metrics.SandboxExecutionsTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.SandboxDurationSeconds.Observe(result.Duration.Seconds())

	switch result.Status {
	case ExecSuccess:
		e.logger.Info("✅ Task succeeded in %.2fs: %d logs, %d errors",
			result.Duration.Seconds(), len(result.Logs), len(result.Errors))
	case ExecTimeout:
		e.logger.Warn("⏱️ Task timed out after %.2fs", result.Duration.Seconds())
	case ExecError:
		e.logger.Warn("❌ Task failed after %.2fs: %s", result.Duration.Seconds(), result.Message)
	}
	return result
}

// lastMarkerLine scans stdout bottom-up for the newest result line.
func lastMarkerLine(stdout string) (string, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(lines[i], resultMarker); ok {
			return rest, true
		}
	}
	return "", false
}
