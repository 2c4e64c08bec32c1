package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"collider/internal/jobs"
	"collider/internal/logging"
	"collider/internal/services"
)

// Upload creates a new job from the two object images. Both payloads must
// decode as images and fit within the configured size cap. The stored job has
// its upload stage completed and is ready for analysis.
func (m *Manager) Upload(ctx context.Context, imageA, imageB []byte) (*jobs.Job, error) {
	payloads := map[string][]byte{jobs.ObjectA: imageA, jobs.ObjectB: imageB}
	for _, key := range jobs.ObjectKeys() {
		if err := m.validateImage(key, payloads[key]); err != nil {
			return nil, err
		}
	}

	job, err := m.store.Create(ctx)
	if err != nil {
		return nil, err
	}

	ctx = services.WithJobID(services.WithStage(ctx, jobs.StageUpload), job.ID)
	root := m.cfg.Paths.JobsRoot
	paths := make(map[string]string, 2)
	for _, key := range jobs.ObjectKeys() {
		path := job.UploadPath(root, key)
		if writeErr := os.WriteFile(path, payloads[key], 0o644); writeErr != nil {
			failure := fmt.Errorf("storing %s image: %w", key, writeErr)
			if _, updateErr := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
				j.SetFailed(jobs.StageUpload, failure.Error())
				return nil
			}); updateErr != nil {
				logging.WithContext(ctx, m.logger).Error("recording upload failure failed",
					logging.Error(updateErr))
			}
			return nil, failure
		}
		paths[key] = path
	}

	job, err = m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.ImageA = paths[jobs.ObjectA]
		j.ImageB = paths[jobs.ObjectB]
		j.SetStage(jobs.StageUpload, jobs.StageCompleted, "")
		j.SetProgress(progressUpload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx, m.logger).Info("job created from upload",
		logging.Int("image_a_bytes", len(imageA)),
		logging.Int("image_b_bytes", len(imageB)))
	return job, nil
}

func (m *Manager) validateImage(key string, data []byte) error {
	if len(data) == 0 {
		return services.Wrap(services.ErrValidation, jobs.StageUpload, "upload",
			fmt.Sprintf("%s image payload is empty", key), nil)
	}
	if limit := m.cfg.Upload.MaxBytes; limit > 0 && int64(len(data)) > limit {
		return services.Wrap(services.ErrValidation, jobs.StageUpload, "upload",
			fmt.Sprintf("%s image exceeds the %d byte limit", key, limit), nil)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return services.Wrap(services.ErrValidation, jobs.StageUpload, "upload",
			fmt.Sprintf("%s payload is not a supported image", key), err)
	}
	return nil
}
