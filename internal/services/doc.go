// Package services defines shared utilities consumed by the pipeline stage
// logic and external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures at
//     the HTTP boundary (bad input vs unknown job vs collaborator failure).
//
// Use these helpers when wiring new stage logic so operational behaviour stays
// uniform across the pipeline.
package services
