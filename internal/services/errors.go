package services

import (
	"errors"
	"fmt"

	"sceneforge/internal/storage"
)

// ---------------------------------------------------------------------------
// Error taxonomy for the generation pipeline. The worker translates any
// of these into a failed job; only the transient and rate-limited kinds
// are ever retried, and only inside the Generation Client.
// ---------------------------------------------------------------------------

// TransientProviderError is a 5xx or network-level provider failure.
// Retried with backoff.
type TransientProviderError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("provider error for model %s (status %d): %s", e.Model, e.StatusCode, e.Message)
}

// RateLimitedError is a 429 from the provider. Retried with its own,
// shorter-base backoff.
type RateLimitedError struct {
	Model   string
	Message string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on model %s: %s", e.Model, e.Message)
}

// InvalidInputError is a 4xx other than 429: the request itself is bad
// for this model. Never retried; the client advances to the next
// fallback model immediately.
type InvalidInputError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for model %s (status %d): %s", e.Model, e.StatusCode, e.Message)
}

// ModelUnavailableError means the requested model could not be resolved
// anywhere. An explicitly requested model is never silently substituted.
type ModelUnavailableError struct {
	Model string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model not found: %s", e.Model)
}

// MediaProbeError is a corrupt or zero/non-finite-duration media source.
type MediaProbeError struct {
	Path    string
	Message string
}

func (e *MediaProbeError) Error() string {
	return fmt.Sprintf("media probe failed for %s: %s", e.Path, e.Message)
}

// DownloadError is a non-2xx remote fetch. The storage client produces
// it; the alias keeps the pipeline's failure kinds in one place.
type DownloadError = storage.DownloadError

// AllModelsExhaustedError is the terminal generation failure after every
// fallback model's retry budget is spent. It carries the last underlying
// error and names the last model tried.
type AllModelsExhaustedError struct {
	LastModel string
	LastErr   error
}

func (e *AllModelsExhaustedError) Error() string {
	return fmt.Sprintf("all models exhausted (last tried %s): %v", e.LastModel, e.LastErr)
}

func (e *AllModelsExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryable reports whether an error classifies as worth another
// attempt on the same model.
func IsRetryable(err error) bool {
	var transient *TransientProviderError
	var limited *RateLimitedError
	return errors.As(err, &transient) || errors.As(err, &limited)
}
