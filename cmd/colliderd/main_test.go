package main

import (
	"os"
	"path/filepath"
	"testing"

	"collider/internal/testsupport"
)

func TestBuildLoggerWritesToLogDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		t.Fatalf("buildLogger: %v", err)
	}
	logger.Info("daemon booting")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "collider.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in collider.log")
	}
}

func TestNewPipelineManagerWiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	manager, err := newPipelineManager(cfg, store, nil)
	if err != nil {
		t.Fatalf("newPipelineManager: %v", err)
	}
	if manager == nil {
		t.Fatal("expected pipeline manager")
	}
	manager.Stop()
}
