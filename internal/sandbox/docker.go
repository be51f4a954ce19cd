package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/codesight-dev/codesight/internal/config"
)

const (
	// Resource limits for candidate code. Tighter than interactive
	// workloads: one short-lived process per test case.
	memoryLimitBytes = 256 * 1024 * 1024 // 256MB
	cpuQuota         = 50000             // 0.5 CPU
	pidsLimit        = 64

	stopTimeoutSecs = 1
)

// DockerRunner executes each test case in a fresh container with no network
// and hard resource limits. Containers are force-removed afterwards whether
// the run succeeded or not.
type DockerRunner struct {
	cli     *client.Client
	image   string
	runtime string // "" = default (runc), "runsc" = gVisor
	timeout time.Duration
	logger  *slog.Logger
}

// NewDockerRunner creates a Docker-backed sandbox.
func NewDockerRunner(cfg config.SandboxConfig, logger *slog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sandbox initialized",
		"image", cfg.Image,
		"runtime", defaultString(cfg.Runtime, "default"),
		"per_test_timeout", cfg.PerTestTimeout,
	)
	return &DockerRunner{
		cli:     cli,
		image:   cfg.Image,
		runtime: cfg.Runtime,
		timeout: cfg.PerTestTimeout,
		logger:  logger,
	}, nil
}

// Run executes the candidate code against every test case. A test whose
// driver cannot be built (no recognizable function) fails that test rather
// than the whole run; the candidate sees the failure in the results panel.
func (r *DockerRunner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{TestsTotal: len(req.TestCases)}

	for _, tc := range req.TestCases {
		tr := TestResult{Input: tc.Input, Expected: tc.Output}

		program, err := wrapProgram(req.Code, req.Language, tc.Input)
		if err != nil {
			tr.Error = err.Error()
			res.Results = append(res.Results, tr)
			continue
		}

		actual, runErr := r.runOnce(ctx, req.Language, program)
		tr.Actual = actual
		if runErr != nil {
			tr.Error = runErr.Error()
		} else {
			tr.Passed = strings.TrimSpace(actual) == strings.TrimSpace(tc.Output)
		}
		if tr.Passed {
			res.TestsPassed++
		}
		res.Results = append(res.Results, tr)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	res.Success = res.TestsTotal > 0 && res.TestsPassed == res.TestsTotal
	res.Duration = time.Since(start)
	return res, nil
}

// runOnce runs one wrapped program in a throwaway container and returns the
// last line of its stdout.
func (r *DockerRunner) runOnce(ctx context.Context, language, program string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := interpreterCmd(language, program)
	if err != nil {
		return "", err
	}

	name := "codesight-run-" + uuid.New().String()[:8]
	created, err := r.cli.ContainerCreate(runCtx,
		&container.Config{
			Image:           r.image,
			Cmd:             cmd,
			NetworkDisabled: true,
		},
		&container.HostConfig{
			Runtime:     r.runtime,
			NetworkMode: container.NetworkMode("none"),
			AutoRemove:  false, // removed explicitly so logs can be read first
			Resources: container.Resources{
				Memory:    memoryLimitBytes,
				CPUQuota:  cpuQuota,
				PidsLimit: ptr(int64(pidsLimit)),
			},
		},
		nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create sandbox container: %w", err)
	}
	// Cleanup runs on the background context: the per-test deadline must not
	// leak a stopped container.
	defer r.remove(created.ID)

	if err := r.cli.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start sandbox container: %w", err)
	}

	waitCh, errCh := r.cli.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-runCtx.Done():
		return "", fmt.Errorf("execution timed out after %s", r.timeout)
	case err := <-errCh:
		return "", fmt.Errorf("wait for sandbox container: %w", err)
	case status := <-waitCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := r.logs(runCtx, created.ID)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		msg := lastLine(stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", exitCode)
		}
		return lastLine(stdout), fmt.Errorf("execution failed: %s", msg)
	}
	return lastLine(stdout), nil
}

func (r *DockerRunner) logs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("read sandbox logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", fmt.Errorf("demux sandbox logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// remove force-removes a run container, tolerating concurrent cleanup.
func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	timeout := stopTimeoutSecs
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		r.logger.Debug("sandbox container stop returned error, continuing to remove",
			"container_id", containerID, "error", err)
	}
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return
		}
		r.logger.Warn("failed to remove sandbox container",
			"container_id", containerID, "error", err)
	}
}

// Ping verifies the Docker daemon is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

func ptr[T any](v T) *T {
	return &v
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
