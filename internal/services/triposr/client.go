package triposr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"collider/internal/jobs"
	"collider/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) (string, error)
}

// Generator defines the behaviour required by the generation pipeline.
type Generator interface {
	Generate(ctx context.Context, imagePath, outputDir string) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the TripoSR mesh-generation CLI.
type Client struct {
	toolDir string
	python  string
	timeout time.Duration
	exec    Executor
}

// New constructs a TripoSR client. toolDir is the checkout containing run.py.
func New(toolDir, pythonBinary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	toolDir = strings.TrimSpace(toolDir)
	if toolDir == "" {
		return nil, errors.New("triposr tool directory required")
	}
	pythonBinary = strings.TrimSpace(pythonBinary)
	if pythonBinary == "" {
		pythonBinary = "python"
	}
	client := &Client{
		toolDir: toolDir,
		python:  pythonBinary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Generate produces a mesh for one object image. The tool writes its output
// under outputDir; the resulting mesh path is returned. Existing meshes are
// reused so a failed pipeline run can resume without recomputing.
func (c *Client) Generate(ctx context.Context, imagePath, outputDir string) (string, error) {
	if strings.TrimSpace(imagePath) == "" {
		return "", errors.New("image path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", errors.New("output directory required")
	}

	meshPath := MeshPath(outputDir)
	if info, err := os.Stat(meshPath); err == nil && info.Size() > 0 {
		return meshPath, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create mesh output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"run.py", imagePath, "--output-dir", outputDir}
	output, err := c.exec.Run(runCtx, c.toolDir, c.python, args)
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		detail := strings.TrimSpace(output)
		if detail == "" {
			detail = err.Error()
		}
		return "", services.Wrap(marker, jobs.StageGeneration, "triposr", detail, err)
	}

	if info, err := os.Stat(meshPath); err != nil || info.Size() == 0 {
		return "", services.Wrap(services.ErrExternalTool, jobs.StageGeneration, "triposr",
			fmt.Sprintf("mesh not found at %s", meshPath), nil)
	}
	return meshPath, nil
}

// MeshPath returns where the tool writes the mesh for a given output directory.
func MeshPath(outputDir string) string {
	return filepath.Join(outputDir, "0", "mesh.obj")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
