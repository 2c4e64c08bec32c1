package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"collider/internal/api"
)

func newTestAPIServer(t *testing.T, jobsList []api.Job) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, api.HealthResponse{Status: "ok"})
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, api.JobListResponse{Jobs: jobsList})
	})
	mux.HandleFunc("/api/status/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/status/")
		for _, job := range jobsList {
			if job.ID == id {
				writeTestJSON(t, w, api.JobResponse{Job: job})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		writeTestJSON(t, w, api.ErrorResponse{Error: "job not found"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func sampleJobs() []api.Job {
	now := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	return []api.Job{
		{
			ID:       "f2b9a7d0-1111-2222-3333-444455556666",
			Status:   "complete",
			Progress: 100,
			HasVideo: true,
			Stages: map[string]api.Stage{
				"upload":     {Status: "completed"},
				"analysis":   {Status: "completed"},
				"generation": {Status: "completed"},
				"render":     {Status: "completed"},
			},
			Properties: api.Properties{
				ObjectA: &api.ObjectProperties{Mass: 2.5, Bounciness: 0.3, Friction: 0.8, Facing: "left"},
				ObjectB: &api.ObjectProperties{Mass: 1, Bounciness: 0.5, Friction: 0.5, Facing: "front"},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       "0c7e1f24-aaaa-bbbb-cccc-ddddeeee0000",
			Status:   "error",
			Progress: 50,
			Error:    "mesh generation crashed",
			Stages: map[string]api.Stage{
				"upload":     {Status: "completed"},
				"analysis":   {Status: "completed"},
				"generation": {Status: "error", Message: "mesh generation crashed"},
				"render":     {Status: "pending"},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func TestJobsCommandRendersTable(t *testing.T) {
	server := newTestAPIServer(t, sampleJobs())

	out, err := runCommand(t, "jobs", "--addr", server.URL)
	if err != nil {
		t.Fatalf("jobs command: %v", err)
	}
	for _, want := range []string{"ID", "STATUS", "complete", "error", "100%", "f2b9a7d0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestJobsCommandEmptyList(t *testing.T) {
	server := newTestAPIServer(t, nil)

	out, err := runCommand(t, "jobs", "--addr", server.URL)
	if err != nil {
		t.Fatalf("jobs command: %v", err)
	}
	if !strings.Contains(out, "No jobs found") {
		t.Fatalf("expected empty-list message, got:\n%s", out)
	}
}

func TestShowCommandRendersDetails(t *testing.T) {
	list := sampleJobs()
	server := newTestAPIServer(t, list)

	out, err := runCommand(t, "show", list[0].ID, "--addr", server.URL)
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	for _, want := range []string{"Job " + list[0].ID, "status:", "complete", "render", "mass:", "2.50", "facing:", "left"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestShowCommandUnknownJob(t *testing.T) {
	server := newTestAPIServer(t, nil)

	_, err := runCommand(t, "show", "missing", "--addr", server.URL)
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !strings.Contains(err.Error(), "job not found") {
		t.Fatalf("expected daemon error message, got %v", err)
	}
}

func TestStatusCommandSummarizesJobs(t *testing.T) {
	server := newTestAPIServer(t, sampleJobs())

	out, err := runCommand(t, "status", "--addr", server.URL)
	if err != nil {
		t.Fatalf("status command: %v", err)
	}
	for _, want := range []string{"Daemon", "health:", "ok", "total:", "2", "complete:", "error:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestConfigInitCommandWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to reference %s, got:\n%s", target, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite on existing file")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestRenderTablePadsMissingCells(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only-a"}}, 1)
	if !strings.Contains(out, "only-a") {
		t.Fatalf("expected cell content in table, got:\n%s", out)
	}
	if !strings.Contains(out, "A") || !strings.Contains(out, "B") {
		t.Fatalf("expected headers in table, got:\n%s", out)
	}
}
