package attendance

import (
	"time"

	"classroll/internal/marking"
)

// EventSubmitted is published after a bulk submission commits.
const EventSubmitted = "attendance.submitted"

// ClassSession is a scheduled class and the teacher who owns it.
type ClassSession struct {
	ID               int64
	CourseOfferingID int64
	TeacherID        int64
	CourseCode       string
	CourseTitle      string
	SessionDate      string // YYYY-MM-DD
	StartTime        string
	Room             string
}

func (s ClassSession) info() marking.SessionInfo {
	return marking.SessionInfo{
		ID:          s.ID,
		CourseCode:  s.CourseCode,
		CourseTitle: s.CourseTitle,
		SessionDate: s.SessionDate,
		StartTime:   s.StartTime,
		Room:        s.Room,
	}
}

// RosterResponse is the body of GET /sessions/:id/roster.
type RosterResponse struct {
	Session    marking.SessionInfo   `json:"session"`
	Students   []marking.RosterEntry `json:"students"`
	Statistics marking.Statistics    `json:"statistics"`
}

// BulkMarkRequest is the body of POST /sessions/:id/attendance.
type BulkMarkRequest struct {
	AttendanceRecords []MarkRecord `json:"attendanceRecords" validate:"required,min=1,dive"`
}

type MarkRecord struct {
	StudentID int64  `json:"studentId" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused"`
	Remarks   string `json:"remarks,omitempty" validate:"max=1000"`
}

// BulkResult reports a committed submission.
type BulkResult struct {
	SubmissionID string `json:"submissionId"`
	Success      int    `json:"success"`
	Total        int    `json:"total"`
}

// MarkAllRequest is the body of POST /sessions/:id/attendance/mark-all.
type MarkAllRequest struct {
	Status string `json:"status" validate:"required,oneof=present absent"`
}

// Report summarizes a session's stored attendance.
type Report struct {
	Session     marking.SessionInfo `json:"session"`
	Statistics  marking.Statistics  `json:"statistics"`
	Unmarked    int                 `json:"unmarked"`
	Percentage  float64             `json:"percentage"`
	Students    []ReportRow         `json:"students"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

type ReportRow struct {
	StudentID   int64          `json:"studentId"`
	StudentName string         `json:"studentName"`
	Status      marking.Status `json:"status,omitempty"`
	Remarks     string         `json:"remarks,omitempty"`
}

// SubmittedEvent is the queue body for EventSubmitted.
type SubmittedEvent struct {
	SubmissionID string    `json:"submission_id"`
	SessionID    int64     `json:"session_id"`
	TeacherID    int64     `json:"teacher_id"`
	Records      int       `json:"records"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// CourseOffering is a course taught by one teacher in one term.
type CourseOffering struct {
	ID          int64
	TeacherID   int64
	CourseCode  string
	CourseTitle string
}

// StudentTally counts one student's stored marks across an offering.
type StudentTally struct {
	StudentID       int64
	AdmissionNumber string
	FirstName       string
	LastName        string
	Present         int
	Absent          int
	Late            int
	Excused         int
}

// CourseStats is the body of GET /courses/:id/stats.
type CourseStats struct {
	Course   CourseInfo          `json:"course"`
	Overall  CourseOverall       `json:"overall"`
	Students []StudentCourseStat `json:"students"`
}

type CourseInfo struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

type CourseOverall struct {
	TotalStudents     int     `json:"totalStudents"`
	TotalSessions     int     `json:"totalSessions"`
	AverageAttendance float64 `json:"averageAttendance"`
}

type StudentCourseStat struct {
	StudentID     int64   `json:"studentId"`
	StudentName   string  `json:"studentName"`
	AdmissionNo   string  `json:"admissionNo"`
	Present       int     `json:"present"`
	Absent        int     `json:"absent"`
	Late          int     `json:"late"`
	Excused       int     `json:"excused"`
	TotalSessions int     `json:"totalSessions"`
	Percentage    float64 `json:"percentage"`
}

// AttendanceRecord is one stored mark.
type AttendanceRecord struct {
	ID        int64          `json:"id"`
	StudentID int64          `json:"studentId"`
	SessionID int64          `json:"classSessionId"`
	Status    marking.Status `json:"status"`
	Remarks   string         `json:"remarks,omitempty"`
	MarkedBy  int64          `json:"markedBy"`
}

// UpdateAttendanceRequest is the body of PATCH /attendance/:id. A nil field
// is left unchanged.
type UpdateAttendanceRequest struct {
	Status  *string `json:"status" validate:"omitnil,oneof=present absent late excused"`
	Remarks *string `json:"remarks" validate:"omitnil,max=1000"`
}
