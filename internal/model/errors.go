package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when the overall verification deadline expires.
var ErrTimeout = errors.New("verification deadline exceeded")

// ErrNoEvidence marks an empty retrieval. It is informational; the pipeline
// turns it into an INSUFFICIENT verdict rather than failing.
var ErrNoEvidence = errors.New("no evidence found")

// ValidationError reports a malformed request. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// EmbeddingError wraps a failure of the embedding provider
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding (%s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// InferenceError wraps a failure of the NLI provider
type InferenceError struct {
	Provider string
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference (%s): %v", e.Provider, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RetrievalError is returned when no retrieval path produced results
type RetrievalError struct {
	VectorErr  error
	KeywordErr error
}

func (e *RetrievalError) Error() string {
	switch {
	case e.VectorErr != nil && e.KeywordErr != nil:
		return fmt.Sprintf("retrieval failed: vector: %v; keyword: %v", e.VectorErr, e.KeywordErr)
	case e.VectorErr != nil:
		return fmt.Sprintf("retrieval failed: vector: %v", e.VectorErr)
	case e.KeywordErr != nil:
		return fmt.Sprintf("retrieval failed: keyword: %v", e.KeywordErr)
	}
	return "retrieval failed"
}

func (e *RetrievalError) Unwrap() []error {
	var errs []error
	if e.VectorErr != nil {
		errs = append(errs, e.VectorErr)
	}
	if e.KeywordErr != nil {
		errs = append(errs, e.KeywordErr)
	}
	return errs
}

// StorageError wraps a failure of a persistence backend
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError reports the stage at which verification gave up
type PipelineError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("pipeline stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsTransient reports whether an operation that failed with err may be
// retried. Validation failures and caller cancellation are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTimeout) {
		return false
	}
	return true
}
