package marking

import (
	"errors"
	"fmt"
)

var (
	ErrNotEditable    = errors.New("marking: session is not editable")
	ErrUnknownStudent = errors.New("marking: student is not on the roster")
	ErrInvalidStatus  = errors.New("marking: invalid attendance status")
	ErrNothingMarked  = errors.New("marking: no students marked")
)

// RosterLoadError is terminal for the session.
type RosterLoadError struct {
	SessionID int64
	Err       error
}

func (e *RosterLoadError) Error() string {
	return fmt.Sprintf("load roster for session %d: %v", e.SessionID, e.Err)
}

func (e *RosterLoadError) Unwrap() error { return e.Err }

// SubmissionError means the store rejected the submission. Marks are kept and
// Submit may be called again.
type SubmissionError struct {
	SessionID int64
	Err       error
}

func (e *SubmissionError) Error() string { return e.Err.Error() }

func (e *SubmissionError) Unwrap() error { return e.Err }
