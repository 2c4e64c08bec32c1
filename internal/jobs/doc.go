// Package jobs persists pipeline jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, and the
// serialized read-modify-write Update contract that keeps status polling
// consistent while the background pipeline mutates a job. Job records capture
// overall status, monotonic progress, per-stage records, physics properties,
// and job-scoped artifact paths.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive; each record is additionally mirrored to a job.json file
// beside its artifacts on a best-effort basis.
//
// Treat this package as the single source of truth for job semantics; when you
// add new statuses or fields, update schema.sql and bump schemaVersion.
package jobs
