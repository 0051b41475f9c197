package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"classroll/internal/marking"
	"classroll/internal/metrics"
	"classroll/internal/queue"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	GetSession(ctx context.Context, sessionID int64) (*ClassSession, error)
	ListRoster(ctx context.Context, session ClassSession) ([]marking.RosterEntry, error)
	SaveAttendance(ctx context.Context, session ClassSession, teacherID int64, records []marking.SubmissionRecord) error
	GetOffering(ctx context.Context, offeringID int64) (*CourseOffering, error)
	CourseTallies(ctx context.Context, offeringID int64) (sessions int, tallies []StudentTally, err error)
	GetAttendance(ctx context.Context, id int64) (*AttendanceRecord, error)
	UpdateAttendance(ctx context.Context, id int64, status *marking.Status, remarks *string, teacherID int64) (AttendanceRecord, error)
}

// Publisher is satisfied by queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// ReportCache stores generated class reports.
type ReportCache interface {
	Get(ctx context.Context, sessionID int64) (*Report, error)
	Put(ctx context.Context, report Report) error
	Invalidate(ctx context.Context, sessionID int64) error
}

// Service owns roster loading, bulk marking and reports for teachers.
type Service struct {
	store    Store
	events   Publisher
	cache    ReportCache
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	// publishTimeout bounds the post-commit cache and queue calls.
	publishTimeout time.Duration
}

// NewService creates a service. events and cache may be nil.
func NewService(store Store, events Publisher, cache ReportCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		events:   events,
		cache:    cache,
		log:      log,
		validate: validator.New(),
		now:      time.Now,

		publishTimeout: 2 * time.Second,
	}
}

// authorize loads the session and checks that teacherID owns it.
func (s *Service) authorize(ctx context.Context, teacherID, sessionID int64) (ClassSession, error) {
	if sessionID <= 0 {
		return ClassSession{}, ErrInvalid("session id must be positive")
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return ClassSession{}, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if session == nil {
		return ClassSession{}, ErrNotFound(fmt.Sprintf("class session with ID %d not found", sessionID))
	}
	if session.TeacherID != teacherID {
		return ClassSession{}, ErrForbidden("you can only access attendance for your own classes")
	}
	return *session, nil
}

// GetRoster returns the enrolled students with their stored marks.
func (s *Service) GetRoster(ctx context.Context, teacherID, sessionID int64) (resp RosterResponse, err error) {
	defer func() { metrics.RosterLoads.WithLabelValues(metrics.Result(err)).Inc() }()

	session, err := s.authorize(ctx, teacherID, sessionID)
	if err != nil {
		return RosterResponse{}, err
	}
	students, err := s.store.ListRoster(ctx, session)
	if err != nil {
		return RosterResponse{}, fmt.Errorf("list roster for session %d: %w", sessionID, err)
	}
	if students == nil {
		students = []marking.RosterEntry{}
	}
	return RosterResponse{
		Session:    session.info(),
		Students:   students,
		Statistics: marking.ComputeStatistics(students, marking.PriorMarks(students)),
	}, nil
}

// BulkMark validates and stores a whole submission. Either every record is
// written or none is.
func (s *Service) BulkMark(ctx context.Context, teacherID, sessionID int64, req BulkMarkRequest) (res BulkResult, err error) {
	defer func() { metrics.Submissions.WithLabelValues(metrics.Result(err)).Inc() }()

	records, err := s.normalize(req)
	if err != nil {
		return BulkResult{}, err
	}
	session, err := s.authorize(ctx, teacherID, sessionID)
	if err != nil {
		return BulkResult{}, err
	}

	if err := s.store.SaveAttendance(ctx, session, teacherID, records); err != nil {
		var notEnrolled *NotEnrolledError
		if errors.As(err, &notEnrolled) {
			return BulkResult{}, &APIError{
				Code:    CodeUnprocessable,
				Message: "student is not enrolled in this course",
				Details: map[string]any{"studentIds": notEnrolled.StudentIDs},
			}
		}
		return BulkResult{}, fmt.Errorf("save attendance for session %d: %w", sessionID, err)
	}

	for _, r := range records {
		metrics.SubmittedRecords.WithLabelValues(string(r.Status)).Inc()
	}
	res = BulkResult{SubmissionID: ulid.Make().String(), Success: len(records), Total: len(records)}
	s.afterSubmit(ctx, SubmittedEvent{
		SubmissionID: res.SubmissionID,
		SessionID:    sessionID,
		TeacherID:    teacherID,
		Records:      len(records),
		SubmittedAt:  s.now().UTC(),
	})
	return res, nil
}

func (s *Service) normalize(req BulkMarkRequest) ([]marking.SubmissionRecord, error) {
	for i := range req.AttendanceRecords {
		req.AttendanceRecords[i].Status = strings.ToLower(strings.TrimSpace(req.AttendanceRecords[i].Status))
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrInvalid(validationMessage(err))
	}
	seen := make(map[int64]bool, len(req.AttendanceRecords))
	out := make([]marking.SubmissionRecord, 0, len(req.AttendanceRecords))
	for _, r := range req.AttendanceRecords {
		if seen[r.StudentID] {
			return nil, ErrInvalid(fmt.Sprintf("student %d appears more than once", r.StudentID))
		}
		seen[r.StudentID] = true
		out = append(out, marking.SubmissionRecord{StudentID: r.StudentID, Status: marking.Status(r.Status), Remarks: r.Remarks})
	}
	return out, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must contain at least " + fe.Param() + " item"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	}
	return field + " is invalid"
}

// afterSubmit drops the cached report and announces the submission. Neither
// failure affects the committed write, and neither waits longer than
// publishTimeout even if the caller's context is still open or already gone.
func (s *Service) afterSubmit(ctx context.Context, evt SubmittedEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, evt.SessionID); err != nil {
			s.log.Warn("report cache invalidate failed", zap.Int64("session_id", evt.SessionID), zap.Error(err))
		}
	}
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(EventSubmitted, evt)
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("publish submission event failed",
			zap.String("submission_id", evt.SubmissionID),
			zap.Int64("session_id", evt.SessionID),
			zap.Error(err))
	}
}

// MarkAll drives a marking session in-process: load, overwrite every
// student with status, submit.
func (s *Service) MarkAll(ctx context.Context, actor marking.Actor, sessionID int64, req MarkAllRequest) (marking.Statistics, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.validate.Struct(req); err != nil {
		return marking.Statistics{}, ErrInvalid(validationMessage(err))
	}
	b := s.Backend()
	ms := marking.NewSession(actor, sessionID, b, b)
	defer ms.Close()

	if err := ms.Load(ctx); err != nil {
		return marking.Statistics{}, unwrapMarking(err)
	}
	if err := ms.MarkAll(marking.Status(req.Status)); err != nil {
		return marking.Statistics{}, err
	}
	stats := ms.Statistics()
	if !ms.CanSubmit() {
		return stats, nil
	}
	if err := ms.Submit(ctx); err != nil {
		return marking.Statistics{}, unwrapMarking(err)
	}
	return stats, nil
}

// unwrapMarking exposes the service error behind a marking wrapper so
// handlers map it to the right status.
func unwrapMarking(err error) error {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	return err
}

// Report returns the class report for a session the teacher owns, served
// from cache when possible.
func (s *Service) Report(ctx context.Context, teacherID, sessionID int64) (Report, error) {
	session, err := s.authorize(ctx, teacherID, sessionID)
	if err != nil {
		return Report{}, err
	}
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		switch {
		case err != nil:
			metrics.ReportCache.WithLabelValues("error").Inc()
			s.log.Warn("report cache get failed", zap.Int64("session_id", sessionID), zap.Error(err))
		case cached != nil:
			metrics.ReportCache.WithLabelValues("hit").Inc()
			return *cached, nil
		default:
			metrics.ReportCache.WithLabelValues("miss").Inc()
		}
	}
	return s.buildAndCache(ctx, session)
}

// RefreshReport rebuilds and caches the report without an ownership check.
// The worker calls it after a submission event.
func (s *Service) RefreshReport(ctx context.Context, sessionID int64) (Report, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Report{}, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if session == nil {
		return Report{}, ErrNotFound(fmt.Sprintf("class session with ID %d not found", sessionID))
	}
	return s.buildAndCache(ctx, *session)
}

func (s *Service) buildAndCache(ctx context.Context, session ClassSession) (Report, error) {
	students, err := s.store.ListRoster(ctx, session)
	if err != nil {
		return Report{}, fmt.Errorf("list roster for session %d: %w", session.ID, err)
	}
	report := buildReport(session, students, s.now().UTC())
	if s.cache != nil {
		if err := s.cache.Put(ctx, report); err != nil {
			s.log.Warn("report cache put failed", zap.Int64("session_id", session.ID), zap.Error(err))
		}
	}
	return report, nil
}

func buildReport(session ClassSession, students []marking.RosterEntry, now time.Time) Report {
	stats := marking.ComputeStatistics(students, marking.PriorMarks(students))
	rows := make([]ReportRow, 0, len(students))
	for _, st := range students {
		rows = append(rows, ReportRow{
			StudentID:   st.StudentID,
			StudentName: strings.TrimSpace(st.FirstName + " " + st.LastName),
			Status:      st.PriorStatus,
			Remarks:     st.PriorRemarks,
		})
	}
	return Report{
		Session:     session.info(),
		Statistics:  stats,
		Unmarked:    stats.Unmarked(),
		Percentage:  attendedPercentage(stats),
		Students:    rows,
		GeneratedAt: now,
	}
}

// attendedPercentage counts late and excused students as attended.
func attendedPercentage(st marking.Statistics) float64 {
	if st.Total == 0 {
		return 0
	}
	pct := float64(st.Present+st.Late+st.Excused) / float64(st.Total) * 100
	return math.Round(pct*100) / 100
}

// UpdateRecord edits the status and/or remarks of one stored mark in a
// session the teacher owns.
func (s *Service) UpdateRecord(ctx context.Context, teacherID, attendanceID int64, req UpdateAttendanceRequest) (AttendanceRecord, error) {
	if req.Status != nil {
		v := strings.ToLower(strings.TrimSpace(*req.Status))
		req.Status = &v
	}
	if err := s.validate.Struct(req); err != nil {
		return AttendanceRecord{}, ErrInvalid(validationMessage(err))
	}
	if req.Status == nil && req.Remarks == nil {
		return AttendanceRecord{}, ErrInvalid("status or remarks is required")
	}
	if attendanceID <= 0 {
		return AttendanceRecord{}, ErrInvalid("attendance id must be positive")
	}

	current, err := s.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("get attendance %d: %w", attendanceID, err)
	}
	if current == nil {
		return AttendanceRecord{}, ErrNotFound(fmt.Sprintf("attendance record with ID %d not found", attendanceID))
	}
	if _, err := s.authorize(ctx, teacherID, current.SessionID); err != nil {
		return AttendanceRecord{}, err
	}

	var status *marking.Status
	if req.Status != nil {
		st := marking.Status(*req.Status)
		status = &st
	}
	updated, err := s.store.UpdateAttendance(ctx, attendanceID, status, req.Remarks, teacherID)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("update attendance %d: %w", attendanceID, err)
	}
	metrics.SubmittedRecords.WithLabelValues(string(updated.Status)).Inc()
	s.afterSubmit(ctx, SubmittedEvent{
		SubmissionID: ulid.Make().String(),
		SessionID:    updated.SessionID,
		TeacherID:    teacherID,
		Records:      1,
		SubmittedAt:  s.now().UTC(),
	})
	return updated, nil
}

// CourseStats summarizes every active student's attendance across all
// sessions of an offering the teacher owns.
func (s *Service) CourseStats(ctx context.Context, teacherID, offeringID int64) (CourseStats, error) {
	if offeringID <= 0 {
		return CourseStats{}, ErrInvalid("course offering id must be positive")
	}
	offering, err := s.store.GetOffering(ctx, offeringID)
	if err != nil {
		return CourseStats{}, fmt.Errorf("get offering %d: %w", offeringID, err)
	}
	if offering == nil {
		return CourseStats{}, ErrNotFound(fmt.Sprintf("course offering with ID %d not found", offeringID))
	}
	if offering.TeacherID != teacherID {
		return CourseStats{}, ErrForbidden("you can only view stats for your own courses")
	}
	sessions, tallies, err := s.store.CourseTallies(ctx, offeringID)
	if err != nil {
		return CourseStats{}, fmt.Errorf("course tallies for offering %d: %w", offeringID, err)
	}
	return buildCourseStats(*offering, sessions, tallies), nil
}

// buildCourseStats rates each student over every session of the offering, so
// sessions with no stored mark count as not attended.
func buildCourseStats(offering CourseOffering, sessions int, tallies []StudentTally) CourseStats {
	out := CourseStats{
		Course:   CourseInfo{ID: offering.ID, Code: offering.CourseCode, Title: offering.CourseTitle},
		Students: make([]StudentCourseStat, 0, len(tallies)),
	}
	var sum marking.Statistics
	for _, t := range tallies {
		st := marking.Statistics{Present: t.Present, Absent: t.Absent, Late: t.Late, Excused: t.Excused, Total: sessions}
		out.Students = append(out.Students, StudentCourseStat{
			StudentID:     t.StudentID,
			StudentName:   strings.TrimSpace(t.FirstName + " " + t.LastName),
			AdmissionNo:   t.AdmissionNumber,
			Present:       t.Present,
			Absent:        t.Absent,
			Late:          t.Late,
			Excused:       t.Excused,
			TotalSessions: sessions,
			Percentage:    attendedPercentage(st),
		})
		sum.Present += t.Present
		sum.Absent += t.Absent
		sum.Late += t.Late
		sum.Excused += t.Excused
	}
	sum.Total = len(tallies) * sessions
	out.Overall = CourseOverall{
		TotalStudents:     len(tallies),
		TotalSessions:     sessions,
		AverageAttendance: attendedPercentage(sum),
	}
	return out
}
