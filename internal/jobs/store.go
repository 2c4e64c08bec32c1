package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"collider/internal/config"
	"collider/internal/services"
)

// Store manages job persistence backed by SQLite. Writes are serialized so
// status pollers always observe a fully committed job record.
type Store struct {
	db       *sql.DB
	path     string
	jobsRoot string

	writeMu sync.Mutex
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, jobsRoot: cfg.Paths.JobsRoot}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// JobsRoot returns the root directory for per-job storage.
func (s *Store) JobsRoot() string {
	return s.jobsRoot
}

// Create allocates a new job with every stage pending. The job's storage
// namespace is created on disk before the record is persisted.
func (s *Store) Create(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusCreated,
		Progress:  0,
		Stages:    newStages(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := os.MkdirAll(job.UploadsDir(s.jobsRoot), 0o755); err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}

	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stages: %w", err)
	}

	timestamp := now.Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO jobs (id, status, progress, stages_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Status,
		job.Progress,
		string(stagesJSON),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	s.mirrorMetadata(job)
	return job.Clone(), nil
}

// GetByID fetches a job by identifier. Unknown identifiers yield
// services.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", fmt.Sprintf("job %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update applies a mutation to a job record atomically with respect to other
// writers. The mutator receives the current record, and the modified record is
// persisted in one step; concurrent GetByID calls observe either the previous
// or the new record, never an intermediate state.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stages: %w", err)
	}
	var propertiesJSON []byte
	if job.Properties.ObjectA != nil || job.Properties.ObjectB != nil {
		propertiesJSON, err = json.Marshal(job.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshal properties: %w", err)
		}
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = ?, stages_json = ?, properties_json = ?,
             image_a = ?, image_b = ?, mesh_a = ?, mesh_b = ?, video_path = ?,
             error_message = ?, updated_at = ?
         WHERE id = ?`,
		job.Status,
		job.Progress,
		string(stagesJSON),
		nullableString(string(propertiesJSON)),
		nullableString(job.ImageA),
		nullableString(job.ImageB),
		nullableString(job.MeshA),
		nullableString(job.MeshB),
		nullableString(job.VideoPath),
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	s.mirrorMetadata(job)
	return job.Clone(), nil
}

// List returns jobs filtered by optional statuses, oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// mirrorMetadata writes the job record next to its artifacts. Best effort:
// the database remains authoritative and mirror failures are ignored.
func (s *Store) mirrorMetadata(job *Job) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(job.MetadataPath(s.jobsRoot), data, 0o644)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
