package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collider/internal/config"
	"collider/internal/jobs"
	"collider/internal/logging"
	"collider/internal/services"
	"collider/internal/services/blender"
)

// Estimator produces physics attributes from a single object image.
type Estimator interface {
	EstimateProperties(ctx context.Context, imagePath string) (jobs.ObjectProperties, error)
}

// MeshGenerator converts an object image into a 3D mesh.
type MeshGenerator interface {
	Generate(ctx context.Context, imagePath, outputDir string) (string, error)
}

// Renderer produces the collision video from two meshes.
type Renderer interface {
	Render(ctx context.Context, req blender.Request) error
}

// Cleaner strips image backgrounds ahead of mesh generation.
type Cleaner interface {
	Clean(ctx context.Context, inputPath, outputPath string) (string, error)
}

// Progress checkpoints reported through status polling.
const (
	progressUpload   = 10
	progressAnalysis = 40
	progressCleanA   = 45
	progressMeshA    = 50
	progressCleanB   = 58
	progressMeshB    = 65
	progressRender   = 75
	progressComplete = 100
)

// Manager owns the job pipeline: synchronous upload and analysis, and the
// asynchronous generation run that produces the collision video.
type Manager struct {
	cfg    *config.Config
	store  *jobs.Store
	vision Estimator
	mesh   MeshGenerator
	render Renderer
	clean  Cleaner
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewManager wires the pipeline against its collaborators. The logger may be
// nil, in which case pipeline events are discarded.
func NewManager(cfg *config.Config, store *jobs.Store, vision Estimator, mesh MeshGenerator, render Renderer, clean Cleaner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		store:   store,
		vision:  vision,
		mesh:    mesh,
		render:  render,
		clean:   clean,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
		baseCtx: ctx,
		cancel:  cancel,
		active:  make(map[string]struct{}),
	}
}

// RecoverInterrupted fails jobs left in generating status by an earlier
// process. Their worker goroutines died with that process, so without this
// sweep the status check would report them as running forever. Called once at
// daemon startup, before the API accepts requests.
func (m *Manager) RecoverInterrupted(ctx context.Context) error {
	stale, err := m.store.List(ctx, jobs.StatusGenerating)
	if err != nil {
		return err
	}
	for _, job := range stale {
		if m.Running(job.ID) {
			continue
		}
		stage := jobs.StageGeneration
		if job.Stage(jobs.StageRender).Status == jobs.StageRunning {
			stage = jobs.StageRender
		}
		if _, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
			if j.Status != jobs.StatusGenerating {
				return nil
			}
			j.SetFailed(stage, "generation interrupted by daemon restart")
			return nil
		}); err != nil {
			return err
		}
		m.logger.Warn("failed generation interrupted by earlier shutdown",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldStage, stage))
	}
	return nil
}

// Stop cancels in-flight generation runs and waits for their goroutines to
// drain. Safe to call more than once.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Analyze runs property estimation over both uploaded images and stores the
// result. It blocks until both estimates return or one fails.
func (m *Manager) Analyze(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ImageA == "" || job.ImageB == "" {
		return nil, services.Wrap(services.ErrInvalidState, jobs.StageAnalysis, "analyze",
			"job has no uploaded images", nil)
	}
	if job.Status.IsTerminal() {
		return nil, services.Wrap(services.ErrInvalidState, jobs.StageAnalysis, "analyze",
			fmt.Sprintf("job is %s and accepts no further analysis", job.Status), nil)
	}
	if job.Status == jobs.StatusGenerating {
		return nil, services.Wrap(services.ErrInvalidState, jobs.StageAnalysis, "analyze",
			"generation is already running", nil)
	}

	ctx = services.WithJobID(services.WithStage(ctx, jobs.StageAnalysis), jobID)
	logger := logging.WithContext(ctx, m.logger)

	if _, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		j.Status = jobs.StatusAnalyzing
		j.SetStage(jobs.StageAnalysis, jobs.StageRunning, "")
		return nil
	}); err != nil {
		return nil, err
	}

	logger.Info("analyzing uploaded images")

	estimates := make(map[string]jobs.ObjectProperties, 2)
	images := map[string]string{jobs.ObjectA: job.ImageA, jobs.ObjectB: job.ImageB}
	for _, key := range jobs.ObjectKeys() {
		est, estErr := m.estimateProperties(ctx, images[key])
		if estErr != nil {
			m.recordFailure(ctx, jobID, jobs.StageAnalysis, estErr)
			return nil, estErr
		}
		estimates[key] = est
		logger.Info("estimated object properties",
			logging.String("object", key),
			logging.Float64("mass", est.Mass),
			logging.String("facing", est.Facing))
	}

	return m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		propsA := estimates[jobs.ObjectA]
		propsB := estimates[jobs.ObjectB]
		j.Properties.ObjectA = &propsA
		j.Properties.ObjectB = &propsB
		j.SetStage(jobs.StageAnalysis, jobs.StageCompleted, "")
		j.Status = jobs.StatusReady
		j.SetProgress(progressAnalysis)
		return nil
	})
}

// estimateProperties applies the configured estimation deadline on top of
// whatever deadline the caller's context already carries.
func (m *Manager) estimateProperties(ctx context.Context, imagePath string) (jobs.ObjectProperties, error) {
	if secs := m.cfg.Vision.TimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	return m.vision.EstimateProperties(ctx, imagePath)
}

// SaveProperties merges user-supplied physics attributes into the job. Values
// are validated against the render script's accepted ranges. Once both objects
// have attributes the job becomes ready for generation. Attributes are frozen
// while generation runs and once the job completes; an errored job stays
// editable so a failed run can be corrected and retried.
func (m *Manager) SaveProperties(ctx context.Context, jobID string, props jobs.Properties) (*jobs.Job, error) {
	for _, key := range jobs.ObjectKeys() {
		if obj := props.Get(key); obj != nil {
			if err := validateObjectProperties(key, *obj); err != nil {
				return nil, err
			}
		}
	}

	return m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusGenerating {
			return services.Wrap(services.ErrInvalidState, jobs.StageAnalysis, "properties",
				"properties are locked while generation runs", nil)
		}
		if j.Status == jobs.StatusComplete {
			return services.Wrap(services.ErrInvalidState, jobs.StageAnalysis, "properties",
				"properties are frozen once the job is complete", nil)
		}
		if props.ObjectA != nil {
			propsA := *props.ObjectA
			j.Properties.ObjectA = &propsA
		}
		if props.ObjectB != nil {
			propsB := *props.ObjectB
			j.Properties.ObjectB = &propsB
		}
		if j.Properties.Complete() && j.ImageA != "" && j.ImageB != "" && !j.Status.IsTerminal() {
			j.SetStage(jobs.StageAnalysis, jobs.StageCompleted, "")
			j.Status = jobs.StatusReady
			j.SetProgress(progressAnalysis)
		}
		return nil
	})
}

// StartGeneration launches the asynchronous mesh-and-render run for a job.
// Only one run per job may be in flight; a second request while the first is
// still running fails with ErrAlreadyRunning. A job whose previous run failed
// is re-armed, keeping stages that already completed.
func (m *Manager) StartGeneration(ctx context.Context, jobID string) (*jobs.Job, error) {
	m.mu.Lock()
	if _, running := m.active[jobID]; running {
		m.mu.Unlock()
		return nil, services.Wrap(services.ErrAlreadyRunning, jobs.StageGeneration, "generate",
			"generation is already running for this job", nil)
	}
	m.active[jobID] = struct{}{}
	m.mu.Unlock()

	job, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusGenerating {
			return services.Wrap(services.ErrAlreadyRunning, jobs.StageGeneration, "generate",
				"generation is already running for this job", nil)
		}
		if j.Status == jobs.StatusComplete {
			return services.Wrap(services.ErrInvalidState, jobs.StageGeneration, "generate",
				"job is already complete", nil)
		}
		if j.ImageA == "" || j.ImageB == "" || !j.Properties.Complete() {
			return services.Wrap(services.ErrInvalidState, jobs.StageGeneration, "generate",
				"job needs uploaded images and complete properties before generation", nil)
		}
		if j.Status == jobs.StatusError {
			j.ResetForGeneration()
		}
		if j.Status != jobs.StatusReady {
			return services.Wrap(services.ErrInvalidState, jobs.StageGeneration, "generate",
				fmt.Sprintf("job is %s, not ready", j.Status), nil)
		}
		j.Status = jobs.StatusGenerating
		j.SetStage(jobs.StageGeneration, jobs.StageRunning, "")
		return nil
	})
	if err != nil {
		m.release(jobID)
		return nil, err
	}

	m.wg.Add(1)
	go m.runGeneration(jobID)
	return job, nil
}

// Running reports whether a generation run is in flight for the job.
func (m *Manager) Running(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[jobID]
	return ok
}

func (m *Manager) release(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}

// runGeneration is the per-job background worker: background removal and mesh
// generation for each object, then the physics render. The first failure marks
// the job as errored and aborts the run.
func (m *Manager) runGeneration(jobID string) {
	defer m.wg.Done()
	defer m.release(jobID)

	ctx := services.WithJobID(m.baseCtx, jobID)
	logger := logging.WithContext(ctx, m.logger)

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		logger.Error("generation run cannot load job", logging.Error(err))
		return
	}
	root := m.cfg.Paths.JobsRoot

	cleanCheckpoints := map[string]float64{jobs.ObjectA: progressCleanA, jobs.ObjectB: progressCleanB}
	meshCheckpoints := map[string]float64{jobs.ObjectA: progressMeshA, jobs.ObjectB: progressMeshB}
	images := map[string]string{jobs.ObjectA: job.ImageA, jobs.ObjectB: job.ImageB}
	meshes := make(map[string]string, 2)

	genCtx := services.WithStage(ctx, jobs.StageGeneration)
	for _, key := range jobs.ObjectKeys() {
		imagePath, cleanErr := m.clean.Clean(genCtx, images[key], job.CleanImagePath(root, key))
		if cleanErr != nil {
			// Background removal is best-effort; the raw upload still works.
			logger.Warn("background removal failed, using original upload",
				logging.String("object", key), logging.Error(cleanErr))
			imagePath = images[key]
		}
		m.setProgress(genCtx, jobID, cleanCheckpoints[key])

		logger.Info("generating mesh", logging.String("object", key))
		meshPath, meshErr := m.mesh.Generate(genCtx, imagePath, job.MeshDir(root, key))
		if meshErr != nil {
			m.recordFailure(genCtx, jobID, jobs.StageGeneration, meshErr)
			return
		}
		meshes[key] = meshPath
		m.setProgress(genCtx, jobID, meshCheckpoints[key])
	}

	if _, err := m.store.Update(genCtx, jobID, func(j *jobs.Job) error {
		j.MeshA = meshes[jobs.ObjectA]
		j.MeshB = meshes[jobs.ObjectB]
		j.SetStage(jobs.StageGeneration, jobs.StageCompleted, "")
		return nil
	}); err != nil {
		logger.Error("persisting meshes failed", logging.Error(err))
		return
	}

	renderCtx := services.WithStage(ctx, jobs.StageRender)
	if _, err := m.store.Update(renderCtx, jobID, func(j *jobs.Job) error {
		j.SetStage(jobs.StageRender, jobs.StageRunning, "")
		j.SetProgress(progressRender)
		return nil
	}); err != nil {
		logger.Error("marking render start failed", logging.Error(err))
		return
	}

	logger.Info("rendering collision video")
	outputPath := job.OutputVideoPath(root)
	renderErr := m.render.Render(renderCtx, blender.Request{
		MeshA:       meshes[jobs.ObjectA],
		MeshB:       meshes[jobs.ObjectB],
		PropertiesA: *job.Properties.ObjectA,
		PropertiesB: *job.Properties.ObjectB,
		WorkDir:     job.Dir(root),
		OutputPath:  outputPath,
	})
	if renderErr != nil {
		m.recordFailure(renderCtx, jobID, jobs.StageRender, renderErr)
		return
	}

	if _, err := m.store.Update(renderCtx, jobID, func(j *jobs.Job) error {
		j.VideoPath = outputPath
		j.SetStage(jobs.StageRender, jobs.StageCompleted, "")
		j.Status = jobs.StatusComplete
		j.SetProgress(progressComplete)
		return nil
	}); err != nil {
		logger.Error("persisting render result failed", logging.Error(err))
		return
	}
	logger.Info("generation complete", logging.String("video", outputPath))
}

func (m *Manager) setProgress(ctx context.Context, jobID string, percent float64) {
	if _, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		j.SetProgress(percent)
		return nil
	}); err != nil {
		logging.WithContext(ctx, m.logger).Warn("progress update failed", logging.Error(err))
	}
}

func (m *Manager) recordFailure(ctx context.Context, jobID, stageKey string, cause error) {
	message := services.Message(cause)
	if _, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
		j.SetFailed(stageKey, message)
		return nil
	}); err != nil {
		logging.WithContext(ctx, m.logger).Error("recording failure failed", logging.Error(err))
	}
	logging.WithContext(ctx, m.logger).Error("pipeline stage failed",
		logging.String(logging.FieldStage, stageKey),
		logging.Error(cause))
}

func validateObjectProperties(key string, props jobs.ObjectProperties) error {
	if props.Mass <= 0 {
		return services.Wrap(services.ErrValidation, jobs.StageAnalysis, "properties",
			fmt.Sprintf("%s: mass must be positive", key), nil)
	}
	if props.Bounciness < 0 || props.Bounciness > 1 {
		return services.Wrap(services.ErrValidation, jobs.StageAnalysis, "properties",
			fmt.Sprintf("%s: bounciness must be between 0 and 1", key), nil)
	}
	if props.Friction < 0 || props.Friction > 1 {
		return services.Wrap(services.ErrValidation, jobs.StageAnalysis, "properties",
			fmt.Sprintf("%s: friction must be between 0 and 1", key), nil)
	}
	switch props.Facing {
	case jobs.FacingLeft, jobs.FacingRight, jobs.FacingFront:
	default:
		return services.Wrap(services.ErrValidation, jobs.StageAnalysis, "properties",
			fmt.Sprintf("%s: facing must be left, right, or front", key), nil)
	}
	return nil
}
