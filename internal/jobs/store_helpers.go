package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const jobColumns = "id, status, progress, stages_json, properties_json, image_a, image_b, mesh_a, mesh_b, video_path, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             string
		statusStr      string
		progress       float64
		stagesJSON     string
		propertiesJSON sql.NullString
		imageA         sql.NullString
		imageB         sql.NullString
		meshA          sql.NullString
		meshB          sql.NullString
		videoPath      sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&progress,
		&stagesJSON,
		&propertiesJSON,
		&imageA,
		&imageB,
		&meshA,
		&meshB,
		&videoPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Status:       Status(statusStr),
		Progress:     progress,
		ImageA:       imageA.String,
		ImageB:       imageB.String,
		MeshA:        meshA.String,
		MeshB:        meshB.String,
		VideoPath:    videoPath.String,
		ErrorMessage: errorMessage.String,
	}

	if err := json.Unmarshal([]byte(stagesJSON), &job.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if propertiesJSON.Valid && propertiesJSON.String != "" {
		if err := json.Unmarshal([]byte(propertiesJSON.String), &job.Properties); err != nil {
			return nil, fmt.Errorf("decode properties: %w", err)
		}
	}

	var err error
	if job.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTimestamp(updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return job, nil
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
