package blender

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"collider/internal/jobs"
	"collider/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) (string, error)
}

// Renderer defines the behaviour required by the generation pipeline.
type Renderer interface {
	Render(ctx context.Context, req Request) error
}

// Request describes one physics render invocation.
type Request struct {
	MeshA       string
	MeshB       string
	PropertiesA jobs.ObjectProperties
	PropertiesB jobs.ObjectProperties
	WorkDir     string
	OutputPath  string
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

// Client wraps headless Blender invocations of the physics render script.
type Client struct {
	binary  string
	script  string
	timeout time.Duration
	exec    Executor
}

// New constructs a Blender client.
func New(binary, script string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("blender binary required")
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("render script required")
	}
	client := &Client{
		binary:  binary,
		script:  script,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Render runs the physics simulation over both meshes and verifies the output
// video exists afterwards. The script receives each mesh followed by its
// physics attributes as positional arguments.
func (c *Client) Render(ctx context.Context, req Request) error {
	if req.MeshA == "" || req.MeshB == "" {
		return errors.New("both meshes required")
	}
	if req.OutputPath == "" {
		return errors.New("output path required")
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"--background", "--python", c.script, "--"}
	args = append(args, objectArgs(req.MeshA, req.PropertiesA)...)
	args = append(args, objectArgs(req.MeshB, req.PropertiesB)...)

	output, err := c.exec.Run(runCtx, req.WorkDir, c.binary, args)
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		detail := strings.TrimSpace(output)
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(marker, jobs.StageRender, "blender", detail, err)
	}

	if info, statErr := os.Stat(req.OutputPath); statErr != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, jobs.StageRender, "blender",
			fmt.Sprintf("expected render output at %s but file not found", req.OutputPath), nil)
	}
	return nil
}

func objectArgs(mesh string, props jobs.ObjectProperties) []string {
	return []string{
		mesh,
		strconv.FormatFloat(props.Mass, 'f', -1, 64),
		strconv.FormatFloat(props.Bounciness, 'f', -1, 64),
		strconv.FormatFloat(props.Friction, 'f', -1, 64),
		props.Facing,
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
