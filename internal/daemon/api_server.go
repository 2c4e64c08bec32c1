package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"collider/internal/api"
	"collider/internal/config"
	"collider/internal/jobs"
	"collider/internal/logging"
	"collider/internal/pipeline"
	"collider/internal/services"
)

// multipartMemoryLimit bounds how much of an upload is buffered in memory
// before spilling to temp files.
const multipartMemoryLimit = 8 << 20

type apiServer struct {
	bind     string
	logger   *slog.Logger
	store    *jobs.Store
	pipeline *pipeline.Manager
	cfg      *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, store *jobs.Store, manager *pipeline.Manager, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address required")
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		store:    store,
		pipeline: manager,
		cfg:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.withRequest(srv.handleHealth))
	mux.HandleFunc("/api/upload", srv.withRequest(srv.handleUpload))
	mux.HandleFunc("/api/analyze", srv.withRequest(srv.handleAnalyze))
	mux.HandleFunc("/api/properties", srv.withRequest(srv.handleProperties))
	mux.HandleFunc("/api/generate", srv.withRequest(srv.handleGenerate))
	mux.HandleFunc("/api/status/", srv.withRequest(srv.handleStatus))
	mux.HandleFunc("/api/video/", srv.withRequest(srv.handleVideo))
	mux.HandleFunc("/api/jobs", srv.withRequest(srv.handleJobs))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}

// withRequest tags each request with a correlation id and logs its outcome.
func (s *apiServer) withRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		handler(w, r.WithContext(ctx))
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if limit := s.cfg.Upload.MaxBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 2*limit+multipartMemoryLimit)
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	imageA, err := readFormImage(r, jobs.ObjectA)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	imageB, err := readFormImage(r, jobs.ObjectB)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.pipeline.Upload(r.Context(), imageA, imageB)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
}

func readFormImage(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %s image", field)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s image: %v", field, err)
	}
	return data, nil
}

func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.JobRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	job, err := s.pipeline.Analyze(r.Context(), req.JobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.PropertiesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	job, err := s.pipeline.SaveProperties(r.Context(), req.JobID, req.Properties.ToJobProperties())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.JobRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	job, err := s.pipeline.StartGeneration(r.Context(), req.JobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/status/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/video/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if job.Status != jobs.StatusComplete || job.VideoPath == "" {
		s.writeServiceError(w, r, services.Wrap(services.ErrNotReady, jobs.StageRender, "video",
			"video is not ready for this job", nil))
		return
	}

	file, err := openVideo(job.VideoPath)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "video artifact unreadable")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, jobs.VideoFileName, info.ModTime(), file)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	list, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func openVideo(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotReady, jobs.StageRender, "video",
			"video artifact missing on disk", err)
	}
	return file, nil
}

func pathID(path, prefix string) (string, bool) {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (s *apiServer) decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	if req, ok := out.(*api.JobRequest); ok && strings.TrimSpace(req.JobID) == "" {
		s.writeError(w, http.StatusBadRequest, "jobId is required")
		return false
	}
	if req, ok := out.(*api.PropertiesRequest); ok && strings.TrimSpace(req.JobID) == "" {
		s.writeError(w, http.StatusBadRequest, "jobId is required")
		return false
	}
	return true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrAlreadyRunning),
		errors.Is(err, services.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrExternalTool):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("request failed",
			logging.String("path", r.URL.Path), logging.Error(err))
	}
	s.writeError(w, status, services.Message(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
