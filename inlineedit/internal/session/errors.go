package session

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an operation is not allowed in the
// session's current state.
var ErrInvalidState = errors.New("session: invalid state")

// ErrExcerptMissing is returned at save time when the excerpt can no longer
// be found in the cached source.
var ErrExcerptMissing = errors.New("session: excerpt no longer in page source")

// ErrEditConflict is returned by a SourceWriter when the page changed
// after the revision the edit was based on.
var ErrEditConflict = errors.New("session: edit conflict")

// StepError is a failure of a hard step: loading the source, writing it or
// rendering the result.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
