package main

import (
	"log/slog"
	"path/filepath"

	"collider/internal/config"
	"collider/internal/jobs"
	"collider/internal/logging"
	"collider/internal/pipeline"
	"collider/internal/services/blender"
	"collider/internal/services/rembg"
	"collider/internal/services/triposr"
	"collider/internal/services/vision"
)

func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "collider.log"),
		},
	})
}

func newPipelineManager(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*pipeline.Manager, error) {
	estimator := vision.NewClient(vision.Config{
		APIKey:         cfg.Vision.APIKey,
		BaseURL:        cfg.Vision.BaseURL,
		Model:          cfg.Vision.Model,
		TimeoutSeconds: cfg.Vision.TimeoutSeconds,
	})

	mesher, err := triposr.New(cfg.Tools.TripoSRDir, cfg.Tools.PythonBinary, cfg.Tools.MeshTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	renderer, err := blender.New(cfg.Tools.BlenderBinary, cfg.Tools.BlenderScript, cfg.Tools.RenderTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	cleaner := rembg.New(cfg.Tools.RembgBinary)

	return pipeline.NewManager(cfg, store, estimator, mesher, renderer, cleaner, logger), nil
}
