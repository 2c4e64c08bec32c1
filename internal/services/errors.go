package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks bad caller input, rejected before any job mutation.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for unknown job identifiers.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks operations requested out of pipeline order.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyRunning marks duplicate generation requests for a job.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotReady marks artifact requests made before the job completed.
	ErrNotReady = errors.New("not ready")
	// ErrExternalTool marks collaborator failures: non-zero exits, missing
	// output files, malformed responses.
	ErrExternalTool = errors.New("external tool error")
	// ErrTimeout marks collaborator calls that exceeded their deadline.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var markers = []error{
	ErrValidation,
	ErrNotFound,
	ErrInvalidState,
	ErrAlreadyRunning,
	ErrNotReady,
	ErrExternalTool,
	ErrTimeout,
}

// Message extracts the human-readable portion of a wrapped error, stripping
// the sentinel prefix so job records and API payloads stay readable.
func Message(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, marker := range markers {
		if prefix := marker.Error() + ": "; strings.HasPrefix(text, prefix) {
			return strings.TrimPrefix(text, prefix)
		}
	}
	return text
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
