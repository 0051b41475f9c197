// Package marking holds the attendance marking flow for one class session:
// roster load, the per-student state map, statistics and bulk submit.
//
// A Session has a single writer. It does no locking; callers that share one
// across goroutines must serialize access themselves.
package marking

import (
	"context"
	"fmt"
)

// Phase is the state of a marking session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseEditing
	PhaseSubmitting
	PhaseSubmitted
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseEditing:
		return "editing"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitted:
		return "submitted"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Session is one operator marking one class session.
type Session struct {
	actor     Actor
	sessionID int64
	provider  RosterProvider
	store     AttendanceStore

	phase  Phase
	roster Roster
	index  map[int64]int
	marks  map[int64]Record
	err    error
}

// NewSession returns a session in the Loading phase. Call Load before editing.
func NewSession(actor Actor, sessionID int64, provider RosterProvider, store AttendanceStore) *Session {
	return &Session{
		actor:     actor,
		sessionID: sessionID,
		provider:  provider,
		store:     store,
		phase:     PhaseLoading,
	}
}

func (s *Session) Phase() Phase     { return s.phase }
func (s *Session) SessionID() int64 { return s.sessionID }
func (s *Session) Roster() Roster   { return s.roster }

// Err returns the last load or submit error, if any.
func (s *Session) Err() error { return s.err }

// Load fetches the roster and seeds the state map from prior marks. Students
// with no prior status stay unmarked.
func (s *Session) Load(ctx context.Context) error {
	if s.phase != PhaseLoading {
		return ErrNotEditable
	}
	roster, err := s.provider.LoadRoster(ctx, s.actor, s.sessionID)
	if err == nil {
		err = s.seed(roster)
	}
	if err != nil {
		s.phase = PhaseFailed
		s.err = &RosterLoadError{SessionID: s.sessionID, Err: err}
		return s.err
	}
	s.phase = PhaseEditing
	return nil
}

func (s *Session) seed(roster Roster) error {
	index := make(map[int64]int, len(roster.Entries))
	marks := make(map[int64]Record)
	for i, e := range roster.Entries {
		if _, dup := index[e.StudentID]; dup {
			return fmt.Errorf("duplicate student %d in roster", e.StudentID)
		}
		index[e.StudentID] = i
		if e.PriorStatus == StatusUnset {
			continue
		}
		if !e.PriorStatus.Valid() {
			return fmt.Errorf("student %d: %w %q", e.StudentID, ErrInvalidStatus, e.PriorStatus)
		}
		marks[e.StudentID] = Record{Status: e.PriorStatus, Remarks: e.PriorRemarks}
	}
	s.roster = roster
	s.index = index
	s.marks = marks
	return nil
}

func (s *Session) editable(studentID int64) error {
	if s.phase != PhaseEditing {
		return ErrNotEditable
	}
	if _, ok := s.index[studentID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStudent, studentID)
	}
	return nil
}

// SetStatus marks a student, keeping any remarks already typed.
func (s *Session) SetStatus(studentID int64, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if err := s.editable(studentID); err != nil {
		return err
	}
	rec := s.marks[studentID]
	rec.Status = status
	s.marks[studentID] = rec
	return nil
}

// SetRemarks stores remarks for a student. An untouched student becomes
// present.
func (s *Session) SetRemarks(studentID int64, remarks string) error {
	if err := s.editable(studentID); err != nil {
		return err
	}
	rec, ok := s.marks[studentID]
	if !ok {
		rec.Status = StatusPresent
	}
	rec.Remarks = remarks
	s.marks[studentID] = rec
	return nil
}

// MarkAll overwrites the status of every roster student, including ones
// already marked differently. Remarks are kept.
func (s *Session) MarkAll(status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if s.phase != PhaseEditing {
		return ErrNotEditable
	}
	for _, e := range s.roster.Entries {
		rec := s.marks[e.StudentID]
		rec.Status = status
		s.marks[e.StudentID] = rec
	}
	return nil
}

func (s *Session) MarkAllPresent() error { return s.MarkAll(StatusPresent) }
func (s *Session) MarkAllAbsent() error  { return s.MarkAll(StatusAbsent) }

// Mark returns the working record for a student.
func (s *Session) Mark(studentID int64) (Record, bool) {
	rec, ok := s.marks[studentID]
	return rec, ok
}

// Marks returns a copy of the state map.
func (s *Session) Marks() map[int64]Record {
	out := make(map[int64]Record, len(s.marks))
	for id, rec := range s.marks {
		out[id] = rec
	}
	return out
}

// MarkedCount is the number of touched students.
func (s *Session) MarkedCount() int { return len(s.marks) }

// Statistics recomputes counts from the full state map.
func (s *Session) Statistics() Statistics {
	return ComputeStatistics(s.roster.Entries, s.marks)
}

// Filter returns the roster entries matching term. It never changes marks.
func (s *Session) Filter(term string) []RosterEntry {
	return FilterEntries(s.roster.Entries, term)
}

// CanSubmit reports whether Submit would reach the store.
func (s *Session) CanSubmit() bool {
	return s.phase == PhaseEditing && len(s.marks) > 0
}

// Payload builds the submission records in roster order.
func (s *Session) Payload() []SubmissionRecord {
	out := make([]SubmissionRecord, 0, len(s.marks))
	for _, e := range s.roster.Entries {
		rec, ok := s.marks[e.StudentID]
		if !ok {
			continue
		}
		out = append(out, SubmissionRecord{StudentID: e.StudentID, Status: rec.Status, Remarks: rec.Remarks})
	}
	return out
}

// Submit sends every mark in one store call. On rejection the session returns
// to Editing with its marks untouched.
func (s *Session) Submit(ctx context.Context) error {
	if s.phase != PhaseEditing {
		return ErrNotEditable
	}
	if len(s.marks) == 0 {
		return ErrNothingMarked
	}
	payload := s.Payload()
	s.phase = PhaseSubmitting
	if err := s.store.SubmitAttendance(ctx, s.actor, s.sessionID, payload); err != nil {
		s.phase = PhaseEditing
		s.err = &SubmissionError{SessionID: s.sessionID, Err: err}
		return s.err
	}
	s.phase = PhaseSubmitted
	s.err = nil
	s.marks = nil
	return nil
}

// Close discards the state map whether or not it was submitted.
func (s *Session) Close() {
	s.marks = nil
	s.phase = PhaseClosed
}
