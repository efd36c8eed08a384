package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoDocument is returned when the document-understanding service responds
// without a document object. Hard failure for the invoice.
var ErrNoDocument = errors.New("no document returned from document AI")

// Stage names the pipeline step an error originated from.
type Stage string

const (
	StageDownload Stage = "download"
	StageDocument Stage = "document"
	StageEnrich   Stage = "enrich"
	StageMatch    Stage = "match"
	StagePersist  Stage = "persist"
)

// StageError wraps a failure with the stage it occurred in. Parse failures
// inside the enrich and match stages are recovered locally and never become
// StageErrors; only failures that abort the invoice do.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
