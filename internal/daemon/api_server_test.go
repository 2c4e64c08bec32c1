package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"collider/internal/api"
	"collider/internal/jobs"
	"collider/internal/pipeline"
	"collider/internal/services/blender"
	"collider/internal/testsupport"
)

type estimatorStub struct {
	props jobs.ObjectProperties
	err   error
}

func (s *estimatorStub) EstimateProperties(context.Context, string) (jobs.ObjectProperties, error) {
	if s.err != nil {
		return jobs.ObjectProperties{}, s.err
	}
	return s.props, nil
}

type meshStub struct{}

func (meshStub) Generate(_ context.Context, _, outputDir string) (string, error) {
	meshPath := filepath.Join(outputDir, "0", "mesh.obj")
	if err := os.MkdirAll(filepath.Dir(meshPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(meshPath, []byte("obj"), 0o644); err != nil {
		return "", err
	}
	return meshPath, nil
}

type rendererStub struct {
	payload []byte
}

func (s *rendererStub) Render(_ context.Context, req blender.Request) error {
	return os.WriteFile(req.OutputPath, s.payload, 0o644)
}

type cleanerStub struct{}

func (cleanerStub) Clean(_ context.Context, inputPath, _ string) (string, error) {
	return inputPath, nil
}

type serverFixture struct {
	srv     *apiServer
	manager *pipeline.Manager
	store   *jobs.Store
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	estimator := &estimatorStub{props: jobs.ObjectProperties{Mass: 2, Bounciness: 0.4, Friction: 0.6, Facing: jobs.FacingFront}}
	renderer := &rendererStub{payload: []byte("0123456789abcdef")}
	manager := pipeline.NewManager(cfg, store, estimator, meshStub{}, renderer, cleanerStub{}, nil)
	t.Cleanup(manager.Stop)

	srv, err := newAPIServer(cfg, store, manager, nil)
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	return &serverFixture{srv: srv, manager: manager, store: store}
}

func (f *serverFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.srv.server.Handler.ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, fields map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, payload := range fields {
		part, err := writer.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(payload); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func (f *serverFixture) uploadJob(t *testing.T) api.Job {
	t.Helper()
	body, contentType := multipartUpload(t, map[string][]byte{
		jobs.ObjectA: testsupport.PNGBytes(t),
		jobs.ObjectB: testsupport.PNGBytes(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := f.do(t, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp.Job
}

func (f *serverFixture) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func (f *serverFixture) completeJob(t *testing.T) api.Job {
	t.Helper()
	job := f.uploadJob(t)
	if w := f.postJSON(t, "/api/analyze", api.JobRequest{JobID: job.ID}); w.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := f.postJSON(t, "/api/generate", api.JobRequest{JobID: job.ID}); w.Code != http.StatusAccepted {
		t.Fatalf("generate: expected 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !f.manager.Running(job.ID) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status/"+job.ID, nil)
	w := f.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if resp.Job.Status != string(jobs.StatusComplete) {
		t.Fatalf("expected complete job, got %s (error=%q)", resp.Job.Status, resp.Job.Error)
	}
	return resp.Job
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
}

func TestUploadEndpointCreatesJob(t *testing.T) {
	f := newServerFixture(t)

	job := f.uploadJob(t)
	if job.ID == "" {
		t.Fatal("expected job id in response")
	}
	if job.Status != string(jobs.StatusCreated) {
		t.Fatalf("expected status created, got %s", job.Status)
	}
	if job.Progress != 10 {
		t.Fatalf("expected progress 10, got %v", job.Progress)
	}
	if job.Stages[jobs.StageUpload].Status != string(jobs.StageCompleted) {
		t.Fatalf("expected upload stage completed, got %s", job.Stages[jobs.StageUpload].Status)
	}
}

func TestUploadEndpointRequiresBothImages(t *testing.T) {
	f := newServerFixture(t)

	body, contentType := multipartUpload(t, map[string][]byte{
		jobs.ObjectA: testsupport.PNGBytes(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := f.do(t, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadEndpointRejectsNonImage(t *testing.T) {
	f := newServerFixture(t)

	body, contentType := multipartUpload(t, map[string][]byte{
		jobs.ObjectA: []byte("definitely not an image"),
		jobs.ObjectB: testsupport.PNGBytes(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := f.do(t, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnalyzeEndpointStoresProperties(t *testing.T) {
	f := newServerFixture(t)
	job := f.uploadJob(t)

	w := f.postJSON(t, "/api/analyze", api.JobRequest{JobID: job.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode analyze response: %v", err)
	}
	if resp.Job.Status != string(jobs.StatusReady) {
		t.Fatalf("expected status ready, got %s", resp.Job.Status)
	}
	if resp.Job.Properties.ObjectA == nil || resp.Job.Properties.ObjectB == nil {
		t.Fatal("expected estimated properties for both objects")
	}
}

func TestAnalyzeEndpointUnknownJob(t *testing.T) {
	f := newServerFixture(t)

	w := f.postJSON(t, "/api/analyze", api.JobRequest{JobID: "no-such-job"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPropertiesEndpointRejectsDuringGeneration(t *testing.T) {
	f := newServerFixture(t)
	job := f.uploadJob(t)

	// Force the job into generating status directly.
	if _, err := f.store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusGenerating
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	payload := api.PropertiesRequest{
		JobID: job.ID,
		Properties: api.Properties{
			ObjectA: &api.ObjectProperties{Mass: 1, Bounciness: 0.5, Friction: 0.5, Facing: jobs.FacingFront},
		},
	}
	w := f.postJSON(t, "/api/properties", payload)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGenerateEndpointConflictWhenRunning(t *testing.T) {
	f := newServerFixture(t)
	job := f.completeJob(t)

	w := f.postJSON(t, "/api/generate", api.JobRequest{JobID: job.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on completed job, got %d", w.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected error message in payload")
	}
}

func TestVideoEndpointBeforeCompleteConflicts(t *testing.T) {
	f := newServerFixture(t)
	job := f.uploadJob(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/video/"+job.ID, nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestVideoEndpointServesFullArtifact(t *testing.T) {
	f := newServerFixture(t)
	job := f.completeJob(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/video/"+job.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", got)
	}
	if w.Body.String() != "0123456789abcdef" {
		t.Fatalf("unexpected video payload: %q", w.Body.String())
	}
}

func TestVideoEndpointHonorsRangeRequests(t *testing.T) {
	f := newServerFixture(t)
	job := f.completeJob(t)

	req := httptest.NewRequest(http.MethodGet, "/api/video/"+job.ID, nil)
	req.Header.Set("Range", "bytes=4-7")
	w := f.do(t, req)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if w.Body.String() != "4567" {
		t.Fatalf("expected bytes 4-7, got %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Range"); !strings.HasPrefix(got, "bytes 4-7/") {
		t.Fatalf("unexpected content range %q", got)
	}
}

func TestStatusEndpointUnknownJob(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/status/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestJobsEndpointFiltersByStatus(t *testing.T) {
	f := newServerFixture(t)
	f.uploadJob(t)
	f.uploadJob(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs?status=created", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode jobs response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Jobs))
	}

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestDecodeJSONRequiresJobID(t *testing.T) {
	f := newServerFixture(t)

	w := f.postJSON(t, "/api/generate", api.JobRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing jobId, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/jobs", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
