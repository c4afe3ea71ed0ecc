package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"guildbot/pkg/logx"
)

// DockerRunner executes the program inside a hardened container. Containers
// are tracked so a shutdown can force-remove anything still running.
type DockerRunner struct {
	logger            *logx.Logger
	image             string
	dockerCmd         string
	containerPrefix   string
	mu                sync.RWMutex
	runningContainers map[string]*exec.Cmd
}

// NewDockerRunner creates a container runner using the given image.
// Prefers docker, falls back to podman when only podman is installed.
func NewDockerRunner(image string) *DockerRunner {
	dockerCmd := "docker"
	if _, err := exec.LookPath("podman"); err == nil {
		if _, err := exec.LookPath("docker"); err != nil {
			dockerCmd = "podman"
		}
	}

	return &DockerRunner{
		logger:            logx.NewLogger("sandbox-docker"),
		image:             image,
		dockerCmd:         dockerCmd,
		containerPrefix:   "guildbot-sandbox-",
		runningContainers: make(map[string]*exec.Cmd),
	}
}

// Name returns the runner type.
func (d *DockerRunner) Name() RunnerType {
	return RunnerTypeDocker
}

// Available checks that the container CLI exists and the daemon responds.
func (d *DockerRunner) Available() bool {
	if _, err := exec.LookPath(d.dockerCmd); err != nil {
		d.logger.Debug("Container command not found: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.dockerCmd, "ps", "-q")
	if err := cmd.Run(); err != nil {
		d.logger.Debug("Container daemon not available: %v", err)
		return false
	}

	return true
}

// Run executes the command in a fresh container. The watchdog kills the
// docker CLI process on expiry and the deferred cleanup force-removes the
// container, so a hung snippet cannot outlive its window.
func (d *DockerRunner) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		opts = &Opts{}
	}

	start := time.Now()
	containerName := fmt.Sprintf("%s%d", d.containerPrefix, time.Now().UnixNano())

	dockerArgs, err := d.buildDockerArgs(containerName, cmd, opts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build container args: %w", err)
	}

	execCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	dockerCmd := exec.CommandContext(execCtx, d.dockerCmd, dockerArgs...)

	d.mu.Lock()
	d.runningContainers[containerName] = dockerCmd
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.runningContainers, containerName)
		d.mu.Unlock()
		d.cleanupContainer(containerName)
	}()

	var stdoutBuf, stderrBuf strings.Builder
	dockerCmd.Stdout = &stdoutBuf
	dockerCmd.Stderr = &stderrBuf

	d.logger.Debug("Executing: %s %s", d.dockerCmd, strings.Join(dockerArgs, " "))
	runErr := dockerCmd.Run()

	result := Result{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		Duration:   time.Since(start),
		RunnerUsed: d.Name(),
		TimedOut:   errors.Is(execCtx.Err(), context.DeadlineExceeded),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		if result.TimedOut {
			return result, nil
		}
		return result, fmt.Errorf("container run failed: %w", runErr)
	}

	result.ExitCode = 0
	return result, nil
}

// buildDockerArgs constructs the docker run arguments with hardening flags.
func (d *DockerRunner) buildDockerArgs(containerName string, cmd []string, opts *Opts) ([]string, error) {
	args := []string{"run", "--rm", "--name", containerName}

	args = append(args, "--security-opt", "no-new-privileges")

	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}

	if opts.ResourceLimits != nil {
		if opts.ResourceLimits.CPUs != "" {
			args = append(args, "--cpus", opts.ResourceLimits.CPUs)
		}
		if opts.ResourceLimits.Memory != "" {
			args = append(args, "--memory", opts.ResourceLimits.Memory)
		}
		if opts.ResourceLimits.PIDs > 0 {
			args = append(args, "--pids-limit", strconv.FormatInt(opts.ResourceLimits.PIDs, 10))
		}
	}

	// Rootless execution as the invoking user.
	args = append(args, "--user", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()))

	if opts.WorkDir != "" {
		absWorkDir, err := filepath.Abs(opts.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		args = append(args, "--volume", fmt.Sprintf("%s:/workspace:rw", absWorkDir))
		args = append(args, "--workdir", "/workspace")
	}

	// Writable scratch space for the toolchain under a read-only user.
	args = append(args, "--tmpfs", "/tmp:exec,nodev,nosuid,size=200m")
	args = append(args, "--tmpfs", "/home:exec,nodev,nosuid,size=100m")
	args = append(args, "--tmpfs", "/.cache:exec,nodev,nosuid,size=200m")

	for _, env := range opts.Env {
		args = append(args, "--env", env)
	}

	args = append(args, d.image)
	args = append(args, cmd...)

	return args, nil
}

// cleanupContainer stops and removes the container if it is still around.
// Both operations are no-ops for an already-gone container, so repeated
// cleanup is safe.
func (d *DockerRunner) cleanupContainer(containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopCmd := exec.CommandContext(ctx, d.dockerCmd, "stop", containerName)
	if err := stopCmd.Run(); err != nil {
		d.logger.Debug("Failed to stop container %s: %v", containerName, err)
	}

	rmCmd := exec.CommandContext(ctx, d.dockerCmd, "rm", "-f", containerName)
	if err := rmCmd.Run(); err != nil {
		d.logger.Debug("Failed to remove container %s: %v", containerName, err)
	}
}

// Shutdown force-removes all tracked containers.
func (d *DockerRunner) Shutdown(ctx context.Context) error {
	d.mu.RLock()
	containers := make([]string, 0, len(d.runningContainers))
	for name := range d.runningContainers {
		containers = append(containers, name)
	}
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, containerName := range containers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			d.cleanupContainer(name)
		}(containerName)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // Context errors pass through
	}
}
