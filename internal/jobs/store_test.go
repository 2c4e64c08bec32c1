package jobs_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"collider/internal/jobs"
	"collider/internal/services"
	"collider/internal/testsupport"
)

func TestCreateInitializesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != jobs.StatusCreated {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	for _, key := range jobs.StageOrder() {
		if got := job.Stage(key).Status; got != jobs.StagePending {
			t.Fatalf("expected stage %s pending, got %s", key, got)
		}
	}
	if info, err := os.Stat(job.UploadsDir(store.JobsRoot())); err != nil || !info.IsDir() {
		t.Fatalf("expected uploads directory to exist: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.ID != job.ID || fetched.Status != jobs.StatusCreated {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
}

func TestGetByIDUnknownSignalsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.GetByID(context.Background(), "nope")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAppliesMutation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store)

	ctx := context.Background()
	updated, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.SetStage(jobs.StageUpload, jobs.StageCompleted, "Images uploaded")
		j.SetProgress(10)
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Progress != 10 {
		t.Fatalf("unexpected progress: %v", updated.Progress)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got := fetched.Stage(jobs.StageUpload); got.Status != jobs.StageCompleted || got.Message != "Images uploaded" {
		t.Fatalf("unexpected upload stage: %#v", got)
	}
	if !fetched.UpdatedAt.After(job.UpdatedAt) && !fetched.UpdatedAt.Equal(job.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v vs %v", fetched.UpdatedAt, job.UpdatedAt)
	}
}

func TestUpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store)

	ctx := context.Background()
	boom := errors.New("boom")
	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusError
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != jobs.StatusCreated {
		t.Fatalf("expected record untouched, got status %s", fetched.Status)
	}
}

func TestUpdatePersistsProperties(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store)

	ctx := context.Background()
	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		propsA := jobs.ObjectProperties{Mass: 3.5, Bounciness: 0.8, Friction: 0.2, Facing: jobs.FacingLeft}
		propsB := jobs.DefaultObjectProperties()
		j.Properties = jobs.Properties{ObjectA: &propsA, ObjectB: &propsB}
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !fetched.Properties.Complete() {
		t.Fatal("expected both property sets persisted")
	}
	if fetched.Properties.ObjectA.Mass != 3.5 || fetched.Properties.ObjectA.Facing != jobs.FacingLeft {
		t.Fatalf("unexpected objectA properties: %#v", fetched.Properties.ObjectA)
	}
}

func TestConcurrentPollersNeverObserveTornState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store)

	ctx := context.Background()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
				j.SetProgress(float64(i * 4))
				if i == 24 {
					j.SetStage(jobs.StageRender, jobs.StageCompleted, "Render finished")
					j.Status = jobs.StatusComplete
					j.SetProgress(100)
				}
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snapshot, err := store.GetByID(ctx, job.ID)
			if err != nil {
				t.Errorf("poll: %v", err)
				return
			}
			if snapshot.Status == jobs.StatusComplete && snapshot.Stage(jobs.StageRender).Status != jobs.StageCompleted {
				t.Errorf("observed complete job with render stage %s", snapshot.Stage(jobs.StageRender).Status)
				return
			}
			if snapshot.Status == jobs.StatusComplete {
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewJob(t, store)
	second := testsupport.NewJob(t, store)
	if _, err := store.Update(ctx, second.ID, func(j *jobs.Job) error {
		j.Status = jobs.StatusReady
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	ready, err := store.List(ctx, jobs.StatusReady)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != second.ID {
		t.Fatalf("unexpected ready list: %#v", ready)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
	if all[0].ID != first.ID {
		t.Fatalf("expected oldest-first ordering, got %s first", all[0].ID)
	}
}

func TestMetadataMirrorWritten(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store)

	mirror := job.MetadataPath(store.JobsRoot())
	data, err := os.ReadFile(mirror)
	if err != nil {
		t.Fatalf("expected metadata mirror at %s: %v", mirror, err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty metadata mirror")
	}
}
