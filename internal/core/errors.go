package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories surfaced by the pipeline.
type ErrorKind string

const (
	KindFetchFailed            ErrorKind = "fetch_failed"
	KindClassificationDegraded ErrorKind = "classification_degraded"
	KindRetrievalEmpty         ErrorKind = "retrieval_empty"
	KindGenerationFailed       ErrorKind = "generation_failed"
	KindSendFailed             ErrorKind = "send_failed"
	KindIndexBuildFailed       ErrorKind = "index_build_failed"
)

var (
	// ErrTimeout marks a provider call that exceeded its deadline.
	ErrTimeout = errors.New("provider call timed out")
	// ErrQuota marks a provider call rejected for rate or quota reasons.
	ErrQuota = errors.New("provider quota exceeded")
	// ErrEmptyCompletion is returned when a provider answers with no text.
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

// StageError is a failure attributed to one pipeline stage.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

// NewStageError wraps err with its stage and kind.
func NewStageError(stage Stage, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsTimeout reports whether err is a provider or context timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// ProviderError normalises a provider failure so callers can test for
// ErrTimeout and ErrQuota with errors.Is.
func ProviderError(provider string, err error, quota bool) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	case quota:
		return fmt.Errorf("%s: %w: %w", provider, ErrQuota, err)
	default:
		return fmt.Errorf("%s: %w", provider, err)
	}
}
