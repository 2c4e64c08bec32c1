// Package daemon coordinates the long-running collider process.
//
// It wires configuration, the job store, and the pipeline manager into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and exposes the HTTP API clients use to upload images, drive analysis and
// generation, poll job status, and fetch the rendered collision video.
//
// Keep orchestration logic here: individual pipeline steps live in their own
// packages while the daemon focuses on startup, shutdown, and the request
// surface.
package daemon
