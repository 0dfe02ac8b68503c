package rag

import (
	"errors"
	"fmt"
)

// Stage names a phase of the document ingest pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageValidation Stage = "validation"
	StageExtraction Stage = "extraction"
	StageAnalysis   Stage = "analysis"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageStoring    Stage = "storing"
)

// ErrEmptyQuery is returned when a search is attempted with a blank query.
var ErrEmptyQuery = errors.New("rag: empty query")

// StageError identifies which pipeline stage failed for a document. Index
// points written before the failure are not rolled back; DeleteDocument is
// the compensating action.
type StageError struct {
	// Stage is the pipeline phase that failed.
	Stage Stage
	// Err is the underlying cause.
	Err error
}

// Error formats the failing stage and cause.
func (e *StageError) Error() string {
	return fmt.Sprintf("rag: %s stage failed: %v", e.Stage, e.Err)
}

// Unwrap exposes the cause for errors.Is/As matching.
func (e *StageError) Unwrap() error { return e.Err }

// abort wraps err as a StageError for the given stage.
func abort(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
