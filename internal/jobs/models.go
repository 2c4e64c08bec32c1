package jobs

import (
	"strings"
	"time"
)

// Status represents the overall lifecycle of a job.
type Status string

const (
	StatusCreated    Status = "created"
	StatusAnalyzing  Status = "analyzing"
	StatusReady      Status = "ready"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusCreated,
	StatusAnalyzing,
	StatusReady,
	StatusGenerating,
	StatusComplete,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further stage execution may occur.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// StageStatus represents the lifecycle of a single pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageErrored   StageStatus = "error"
)

// Stage keys, in pipeline order.
const (
	StageUpload     = "upload"
	StageAnalysis   = "analysis"
	StageGeneration = "generation"
	StageRender     = "render"
)

// StageOrder returns the stage keys in pipeline execution order.
func StageOrder() []string {
	return []string{StageUpload, StageAnalysis, StageGeneration, StageRender}
}

// StageRecord captures per-stage progress for status polling.
type StageRecord struct {
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

var stageRank = map[StageStatus]int{
	StagePending:   0,
	StageRunning:   1,
	StageCompleted: 2,
	StageErrored:   2,
}

// Object keys for the two colliding objects.
const (
	ObjectA = "objectA"
	ObjectB = "objectB"
)

// ObjectKeys returns the two object keys in canonical order.
func ObjectKeys() []string {
	return []string{ObjectA, ObjectB}
}

// Facing orientations recognized by the render script.
const (
	FacingLeft  = "left"
	FacingRight = "right"
	FacingFront = "front"
)

// ObjectProperties holds the physics attributes of one object.
type ObjectProperties struct {
	Mass       float64 `json:"mass"`
	Bounciness float64 `json:"bounciness"`
	Friction   float64 `json:"friction"`
	Facing     string  `json:"facing"`
}

// DefaultObjectProperties returns the fallback attribute values used when the
// estimation service omits or mangles a field.
func DefaultObjectProperties() ObjectProperties {
	return ObjectProperties{
		Mass:       1.0,
		Bounciness: 0.5,
		Friction:   0.5,
		Facing:     FacingFront,
	}
}

// Properties holds the per-object physics attributes for a job.
type Properties struct {
	ObjectA *ObjectProperties `json:"objectA"`
	ObjectB *ObjectProperties `json:"objectB"`
}

// Complete reports whether both objects have attributes.
func (p Properties) Complete() bool {
	return p.ObjectA != nil && p.ObjectB != nil
}

// Get returns the attributes for the given object key.
func (p Properties) Get(key string) *ObjectProperties {
	switch key {
	case ObjectA:
		return p.ObjectA
	case ObjectB:
		return p.ObjectB
	default:
		return nil
	}
}

// Job represents one end-to-end pipeline run persisted in SQLite.
type Job struct {
	ID           string                 `json:"id"`
	Status       Status                 `json:"status"`
	Progress     float64                `json:"progress"`
	Stages       map[string]StageRecord `json:"stages"`
	Properties   Properties             `json:"properties"`
	ImageA       string                 `json:"imageA,omitempty"`
	ImageB       string                 `json:"imageB,omitempty"`
	MeshA        string                 `json:"meshA,omitempty"`
	MeshB        string                 `json:"meshB,omitempty"`
	VideoPath    string                 `json:"videoPath,omitempty"`
	ErrorMessage string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// newStages returns the initial stage map with every stage pending.
func newStages() map[string]StageRecord {
	stages := make(map[string]StageRecord, 4)
	for _, key := range StageOrder() {
		stages[key] = StageRecord{Status: StagePending}
	}
	return stages
}

// Stage returns the record for a stage key, defaulting to pending.
func (j *Job) Stage(key string) StageRecord {
	if record, ok := j.Stages[key]; ok {
		return record
	}
	return StageRecord{Status: StagePending}
}

// SetStage advances a stage record. Transitions that would regress a stage
// (completed or errored back to running, running back to pending) are ignored
// so concurrent pollers never observe a stage moving backwards. Messages on a
// same-rank transition are applied.
func (j *Job) SetStage(key string, status StageStatus, message string) {
	if j.Stages == nil {
		j.Stages = newStages()
	}
	current := j.Stage(key)
	if stageRank[status] < stageRank[current.Status] {
		return
	}
	if current.Status == StageCompleted || current.Status == StageErrored {
		return
	}
	j.Stages[key] = StageRecord{Status: status, Message: message}
}

// SetProgress raises the job progress. Progress is monotonic while the job is
// live; lower values are ignored and values above 100 are clamped.
func (j *Job) SetProgress(percent float64) {
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
}

// SetFailed marks the given stage and the whole job as failed.
func (j *Job) SetFailed(stageKey, message string) {
	j.SetStage(stageKey, StageErrored, message)
	j.Status = StatusError
	j.ErrorMessage = message
}

// ResetForGeneration re-arms the generation pipeline on a job whose previous
// run failed. Completed stages keep their records; every errored stage and the
// incomplete generation and render stages return to pending, and the failure
// is cleared. An errored analysis superseded by manually supplied attributes
// is recorded as completed so the snapshot never carries a stale stage error
// past the retry.
func (j *Job) ResetForGeneration() {
	if j.Stages == nil {
		j.Stages = newStages()
	}
	for _, key := range StageOrder() {
		if record := j.Stage(key); record.Status == StageErrored {
			j.Stages[key] = StageRecord{Status: StagePending}
		}
	}
	for _, key := range []string{StageGeneration, StageRender} {
		if record := j.Stage(key); record.Status != StageCompleted {
			j.Stages[key] = StageRecord{Status: StagePending}
		}
	}
	if j.Properties.Complete() && j.Stage(StageAnalysis).Status != StageCompleted {
		j.Stages[StageAnalysis] = StageRecord{Status: StageCompleted}
	}
	j.ErrorMessage = ""
	j.Status = StatusReady
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Stages = make(map[string]StageRecord, len(j.Stages))
	for key, record := range j.Stages {
		cp.Stages[key] = record
	}
	if j.Properties.ObjectA != nil {
		propsA := *j.Properties.ObjectA
		cp.Properties.ObjectA = &propsA
	}
	if j.Properties.ObjectB != nil {
		propsB := *j.Properties.ObjectB
		cp.Properties.ObjectB = &propsB
	}
	return &cp
}
