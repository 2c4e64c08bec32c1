package testsupport

import (
	"context"
	"testing"

	"collider/internal/config"
	"collider/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a fresh job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// NewUploadedJob creates a job with both images staged and the upload stage
// completed, mirroring the state after a successful upload request.
func NewUploadedJob(t testing.TB, store *jobs.Store) *jobs.Job {
	t.Helper()

	job := NewJob(t, store)
	root := store.JobsRoot()
	imageA := job.UploadPath(root, jobs.ObjectA)
	imageB := job.UploadPath(root, jobs.ObjectB)
	WritePNG(t, imageA)
	WritePNG(t, imageB)

	updated, err := store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		j.ImageA = imageA
		j.ImageB = imageB
		j.SetStage(jobs.StageUpload, jobs.StageCompleted, "Images uploaded")
		j.SetProgress(10)
		return nil
	})
	if err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	return updated
}

// NewReadyJob creates a job that finished analysis with default properties.
func NewReadyJob(t testing.TB, store *jobs.Store) *jobs.Job {
	t.Helper()

	job := NewUploadedJob(t, store)
	updated, err := store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		propsA := jobs.DefaultObjectProperties()
		propsB := jobs.DefaultObjectProperties()
		j.Properties = jobs.Properties{ObjectA: &propsA, ObjectB: &propsB}
		j.SetStage(jobs.StageAnalysis, jobs.StageCompleted, "Properties estimated")
		j.Status = jobs.StatusReady
		j.SetProgress(40)
		return nil
	})
	if err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	return updated
}
