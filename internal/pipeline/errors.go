package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyInput indicates the selected run produced no fragments.
var ErrEmptyInput = errors.New("no fragments in run")

// ErrWrite indicates an output directory or artifact could not be written.
var ErrWrite = errors.New("write failed")

// StageError records the stage a run could not reach.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
