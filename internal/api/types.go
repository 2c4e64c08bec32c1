package api

import (
	"time"

	"collider/internal/jobs"
)

// Job is the wire representation of a pipeline job.
type Job struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Progress   float64          `json:"progress"`
	Stages     map[string]Stage `json:"stages"`
	Properties Properties       `json:"properties"`
	HasVideo   bool             `json:"hasVideo"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Stage is one pipeline stage in a job snapshot.
type Stage struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ObjectProperties carries the physics attributes of one object.
type ObjectProperties struct {
	Mass       float64 `json:"mass"`
	Bounciness float64 `json:"bounciness"`
	Friction   float64 `json:"friction"`
	Facing     string  `json:"facing"`
}

// Properties groups per-object attributes. Nil objects are omitted.
type Properties struct {
	ObjectA *ObjectProperties `json:"objectA,omitempty"`
	ObjectB *ObjectProperties `json:"objectB,omitempty"`
}

// JobRequest addresses an existing job.
type JobRequest struct {
	JobID string `json:"jobId"`
}

// PropertiesRequest carries user-edited physics attributes.
type PropertiesRequest struct {
	JobID      string     `json:"jobId"`
	Properties Properties `json:"properties"`
}

// JobResponse wraps a single job snapshot.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps the job listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromJob converts a stored job into its wire form.
func FromJob(job *jobs.Job) Job {
	stages := make(map[string]Stage, len(job.Stages))
	for key, record := range job.Stages {
		stages[key] = Stage{Status: string(record.Status), Message: record.Message}
	}
	return Job{
		ID:         job.ID,
		Status:     string(job.Status),
		Progress:   job.Progress,
		Stages:     stages,
		Properties: fromProperties(job.Properties),
		HasVideo:   job.Status == jobs.StatusComplete && job.VideoPath != "",
		Error:      job.ErrorMessage,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

// FromJobs converts a job listing into wire form.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

func fromProperties(props jobs.Properties) Properties {
	var out Properties
	if props.ObjectA != nil {
		out.ObjectA = &ObjectProperties{
			Mass:       props.ObjectA.Mass,
			Bounciness: props.ObjectA.Bounciness,
			Friction:   props.ObjectA.Friction,
			Facing:     props.ObjectA.Facing,
		}
	}
	if props.ObjectB != nil {
		out.ObjectB = &ObjectProperties{
			Mass:       props.ObjectB.Mass,
			Bounciness: props.ObjectB.Bounciness,
			Friction:   props.ObjectB.Friction,
			Facing:     props.ObjectB.Facing,
		}
	}
	return out
}

// ToJobProperties converts wire properties into their storage form.
func (p Properties) ToJobProperties() jobs.Properties {
	var out jobs.Properties
	if p.ObjectA != nil {
		out.ObjectA = &jobs.ObjectProperties{
			Mass:       p.ObjectA.Mass,
			Bounciness: p.ObjectA.Bounciness,
			Friction:   p.ObjectA.Friction,
			Facing:     p.ObjectA.Facing,
		}
	}
	if p.ObjectB != nil {
		out.ObjectB = &jobs.ObjectProperties{
			Mass:       p.ObjectB.Mass,
			Bounciness: p.ObjectB.Bounciness,
			Friction:   p.ObjectB.Friction,
			Facing:     p.ObjectB.Facing,
		}
	}
	return out
}
