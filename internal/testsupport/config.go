package testsupport

import (
	"path/filepath"
	"testing"

	"collider/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.JobsRoot = filepath.Join(base, "jobs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Vision.APIKey = "test"
	cfg.Tools.TripoSRDir = filepath.Join(base, "triposr")
	cfg.Tools.BlenderBinary = "blender"
	cfg.Tools.BlenderScript = filepath.Join(base, "render.py")
	cfg.Tools.MeshTimeoutSeconds = 5
	cfg.Tools.RenderTimeoutSeconds = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithVisionKey sets the vision API key on the test config.
func WithVisionKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Vision.APIKey = key
	}
}

// WithUploadMaxBytes overrides the upload size cap on the test config.
func WithUploadMaxBytes(limit int64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.MaxBytes = limit
	}
}
