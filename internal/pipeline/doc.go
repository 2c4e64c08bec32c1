// Package pipeline coordinates the collision pipeline: image upload, physics
// property estimation, per-object mesh generation, and the final physics
// render. Upload and analysis run synchronously against the request; the
// generation run executes in a per-job goroutine and reports its checkpoints
// through the job store so clients can poll.
package pipeline
