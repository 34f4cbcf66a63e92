package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is returned when no archive in the window contained a
// matching record. No output file is written.
var ErrEmptyResult = errors.New("no matching records in window")

// StageError wraps a fatal error with the stage it occurred in
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Stages
const (
	StageIndex   = "retrieve index"
	StageSelect  = "select window"
	StageLedger  = "run ledger"
	StageOutput  = "write output"
	StageArchive = "process archive"
	StagePublish = "publish output"
)
