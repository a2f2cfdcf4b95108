package core

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactNotFound indicates a configured model artifact is
	// missing from the artifact directory. Deployment fault, not
	// retried.
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrNoModalityAvailable indicates a fusion request had zero usable
	// modality predictions.
	ErrNoModalityAvailable = errors.New("no modality predictions available")

	// ErrMissingCorrelationID indicates report metadata lacked the
	// required submission correlation id.
	ErrMissingCorrelationID = errors.New("report metadata missing correlation id")
)

// FormatError indicates an input whose encoding could not be
// recognized: undecodable image bytes, non-numeric CSV cells, an empty
// payload. User-correctable; the request is rejected before inference.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "unrecognized input format: " + e.Reason
}

func NewFormatError(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// ShapeError indicates an input that decoded fine but cannot be coerced
// to the modality's fixed target shape, e.g. a tabular row missing a
// training-schema column. User-correctable.
type ShapeError struct {
	Modality Modality
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("input shape mismatch for %s: %s", e.Modality, e.Reason)
}

func NewShapeError(modality Modality, format string, args ...any) error {
	return &ShapeError{Modality: modality, Reason: fmt.Sprintf(format, args...)}
}

// ArtifactMismatchError indicates a loaded artifact's declared input
// shape disagrees with the configured target shape for its modality.
// Raised at registry load time, never at inference time.
type ArtifactMismatchError struct {
	Modality Modality
	Reason   string
}

func (e *ArtifactMismatchError) Error() string {
	return fmt.Sprintf("artifact version mismatch for %s: %s", e.Modality, e.Reason)
}

// InferenceError wraps a backend failure during a single modality's
// forward pass. The modality is dropped and the request proceeds in
// degraded mode; the adapter never retries.
type InferenceError struct {
	Modality Modality
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %s: %v", e.Modality, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
