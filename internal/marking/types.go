package marking

import "context"

// Status is an attendance mark for one student.
type Status string

const (
	StatusUnset   Status = ""
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Statuses lists the markable values in display order.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// Valid reports whether s is one of the four markable statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// ParseStatus accepts any letter case.
func ParseStatus(v string) (Status, error) {
	s := Status(lower(v))
	if !s.Valid() {
		return StatusUnset, ErrInvalidStatus
	}
	return s, nil
}

// RosterEntry is one enrolled student for a session.
type RosterEntry struct {
	StudentID       int64  `json:"studentId"`
	AdmissionNumber string `json:"admissionNo"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PriorStatus     Status `json:"status,omitempty"`
	PriorRemarks    string `json:"remarks,omitempty"`
}

// SessionInfo describes the class session a roster belongs to.
type SessionInfo struct {
	ID          int64  `json:"id"`
	CourseCode  string `json:"courseCode"`
	CourseTitle string `json:"courseTitle"`
	SessionDate string `json:"sessionDate"`
	StartTime   string `json:"startTime"`
	Room        string `json:"room"`
}

// Roster is the fixed student list of one session.
type Roster struct {
	Session SessionInfo   `json:"session"`
	Entries []RosterEntry `json:"students"`
}

// Record is the working mark of a touched student.
type Record struct {
	Status  Status
	Remarks string
}

// SubmissionRecord is one element of the bulk payload.
type SubmissionRecord struct {
	StudentID int64  `json:"studentId"`
	Status    Status `json:"status"`
	Remarks   string `json:"remarks,omitempty"`
}

// Statistics are counts derived from the current marks.
type Statistics struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// Marked is the number of students holding one of the four statuses.
func (s Statistics) Marked() int { return s.Present + s.Absent + s.Late + s.Excused }

// Unmarked is Total minus Marked.
func (s Statistics) Unmarked() int { return s.Total - s.Marked() }

// Actor identifies the teacher performing the marking. Token is only used by
// transports that need a credential.
type Actor struct {
	TeacherID int64
	Token     string
}

// RosterProvider loads the roster for a session the actor may access.
type RosterProvider interface {
	LoadRoster(ctx context.Context, actor Actor, sessionID int64) (Roster, error)
}

// AttendanceStore persists a whole submission in one call.
type AttendanceStore interface {
	SubmitAttendance(ctx context.Context, actor Actor, sessionID int64, records []SubmissionRecord) error
}
