package codemode

import (
	"errors"
	"fmt"
)

// Stage identifies where in the pipeline a request failed.
type Stage string

// Pipeline stages for error attribution.
const (
	StageClassification Stage = "classification"
	StageGeneration     Stage = "generation"
	StageValidation     Stage = "validation"
	StageThreadCreation Stage = "thread_creation"
	StageApproval       Stage = "approval"
	StageSandboxStartup Stage = "sandbox_startup"
	StageSandboxRuntime Stage = "sandbox_runtime"
	StageSandboxTimeout Stage = "sandbox_timeout"
	StagePresentation   Stage = "presentation"
	StageSummarization  Stage = "summarization"
)

// StageError wraps an error with the pipeline stage it occurred in. The
// orchestrator's error handling branches on the stage, never on error text.
type StageError struct {
	Err   error
	Stage Stage
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with a stage tag.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// StageErrorf builds a StageError from a format string.
func StageErrorf(stage Stage, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// StageOf extracts the stage from an error chain, or empty if untagged.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
