package rembg

import (
	"context"
	"errors"
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

// Cleaner removes image backgrounds ahead of mesh generation.
type Cleaner interface {
	Clean(ctx context.Context, inputPath, outputPath string) (string, error)
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

const cleanTimeout = 120 * time.Second

// Client runs the rembg tool to strip image backgrounds. Background removal
// is optional: with no binary configured Clean passes the input through
// untouched.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a rembg client. An empty binary yields a pass-through client.
func New(binary string, opts ...Option) *Client {
	client := &Client{
		binary: strings.TrimSpace(binary),
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Enabled reports whether a rembg binary is configured.
func (c *Client) Enabled() bool {
	return c.binary != ""
}

// Clean writes a background-stripped copy of inputPath to outputPath and
// returns the path the pipeline should feed into mesh generation. When the
// tool is not configured, or fails, the original input is returned so the
// pipeline can continue with the raw upload.
func (c *Client) Clean(ctx context.Context, inputPath, outputPath string) (string, error) {
	if !c.Enabled() {
		return inputPath, nil
	}
	if inputPath == "" {
		return "", errors.New("input path required")
	}

	runCtx, cancel := context.WithTimeout(ctx, cleanTimeout)
	defer cancel()

	output, err := c.exec.Run(runCtx, filepath.Dir(inputPath), c.binary, []string{"i", inputPath, outputPath})
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		detail := strings.TrimSpace(output)
		if detail == "" {
			detail = err.Error()
		}
		return inputPath, services.Wrap(marker, jobs.StageGeneration, "rembg", detail, err)
	}

	if info, statErr := os.Stat(outputPath); statErr != nil || info.Size() == 0 {
		return inputPath, services.Wrap(services.ErrExternalTool, jobs.StageGeneration, "rembg",
			"rembg produced no output file", nil)
	}
	return outputPath, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
