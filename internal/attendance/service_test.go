package attendance

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"classroll/internal/marking"
	"classroll/internal/queue"
)

const (
	ownerID int64 = 9
	otherID int64 = 10
)

// memStore is an in-memory Store that enforces enrollment like the repository.
type memStore struct {
	mu       sync.Mutex
	sessions map[int64]ClassSession
	roster   []marking.RosterEntry
	saveErr  error
	saves    int

	offerings map[int64]CourseOffering
	sessionsN int
	tallies   []StudentTally
	records   map[int64]AttendanceRecord
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[int64]ClassSession{
			7: {ID: 7, CourseOfferingID: 3, TeacherID: ownerID, CourseCode: "CS101", CourseTitle: "Intro", SessionDate: "2026-03-02", StartTime: "09:00", Room: "B12"},
		},
		roster: []marking.RosterEntry{
			{StudentID: 1, AdmissionNumber: "ADM-001", FirstName: "Amina", LastName: "Okello"},
			{StudentID: 2, AdmissionNumber: "ADM-002", FirstName: "Brian", LastName: "Mutua", PriorStatus: marking.StatusPresent},
			{StudentID: 3, AdmissionNumber: "ADM-003", FirstName: "Chloe", LastName: "Ndlovu", PriorStatus: marking.StatusAbsent, PriorRemarks: "sick"},
		},
		offerings: map[int64]CourseOffering{
			3: {ID: 3, TeacherID: ownerID, CourseCode: "CS101", CourseTitle: "Intro"},
		},
		sessionsN: 4,
		tallies: []StudentTally{
			{StudentID: 1, AdmissionNumber: "ADM-001", FirstName: "Amina", LastName: "Okello", Present: 3, Late: 1},
			{StudentID: 3, AdmissionNumber: "ADM-003", FirstName: "Chloe", LastName: "Ndlovu", Present: 1, Absent: 1, Excused: 1},
		},
		records: map[int64]AttendanceRecord{
			100: {ID: 100, StudentID: 3, SessionID: 7, Status: marking.StatusAbsent, Remarks: "sick", MarkedBy: ownerID},
			101: {ID: 101, StudentID: 3, SessionID: 8, Status: marking.StatusPresent, MarkedBy: otherID},
		},
	}
}

func (m *memStore) GetOffering(_ context.Context, id int64) (*CourseOffering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offerings[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memStore) CourseTallies(_ context.Context, _ int64) (int, []StudentTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionsN, m.tallies, nil
}

func (m *memStore) GetAttendance(_ context.Context, id int64) (*AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) UpdateAttendance(_ context.Context, id int64, status *marking.Status, remarks *string, teacherID int64) (AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	if status != nil {
		r.Status = *status
	}
	if remarks != nil {
		r.Remarks = *remarks
	}
	r.MarkedBy = teacherID
	m.records[id] = r
	return r, nil
}

func (m *memStore) GetSession(_ context.Context, id int64) (*ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) ListRoster(_ context.Context, _ ClassSession) ([]marking.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]marking.RosterEntry, len(m.roster))
	copy(out, m.roster)
	return out, nil
}

func (m *memStore) SaveAttendance(_ context.Context, _ ClassSession, _ int64, records []marking.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	index := make(map[int64]int, len(m.roster))
	for i, e := range m.roster {
		index[e.StudentID] = i
	}
	var missing []int64
	for _, r := range records {
		if _, ok := index[r.StudentID]; !ok {
			missing = append(missing, r.StudentID)
		}
	}
	if len(missing) > 0 {
		return &NotEnrolledError{StudentIDs: missing}
	}
	m.saves++
	for _, r := range records {
		e := &m.roster[index[r.StudentID]]
		e.PriorStatus = r.Status
		if r.Remarks != "" {
			e.PriorRemarks = r.Remarks
		}
	}
	return nil
}

type mapCache struct {
	mu          sync.Mutex
	reports     map[int64]Report
	invalidated []int64
	getErr      error
}

func newMapCache() *mapCache { return &mapCache{reports: map[int64]Report{}} }

func (c *mapCache) Get(_ context.Context, id int64) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	r, ok := c.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *mapCache) Put(_ context.Context, r Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[r.Session.ID] = r
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	delete(c.reports, id)
	return nil
}

func (c *mapCache) has(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.reports[id]
	return ok
}

func apiCode(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	require.True(t, errors.As(err, &api), "expected *APIError, got %v", err)
	return api.Code
}

func TestGetRosterChecksOwnership(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	ctx := context.Background()

	resp, err := svc.GetRoster(ctx, ownerID, 7)
	require.NoError(t, err)
	assert.Len(t, resp.Students, 3)
	assert.Equal(t, "CS101", resp.Session.CourseCode)
	assert.Equal(t, marking.Statistics{Present: 1, Absent: 1, Total: 3}, resp.Statistics)

	_, err = svc.GetRoster(ctx, otherID, 7)
	assert.Equal(t, CodeForbidden, apiCode(t, err))

	_, err = svc.GetRoster(ctx, ownerID, 99)
	assert.Equal(t, CodeNotFound, apiCode(t, err))
}

func TestBulkMarkStoresAndPublishes(t *testing.T) {
	st := newMemStore()
	q := queue.NewInMemory(4)
	cache := newMapCache()
	svc := NewService(st, q, cache, nil)
	ctx := context.Background()

	res, err := svc.BulkMark(ctx, ownerID, 7, BulkMarkRequest{AttendanceRecords: []MarkRecord{
		{StudentID: 1, Status: " Late "},
		{StudentID: 3, Status: "present"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.SubmissionID, 26)

	assert.Equal(t, marking.StatusLate, st.roster[0].PriorStatus)
	assert.Equal(t, marking.StatusPresent, st.roster[2].PriorStatus)
	assert.Equal(t, "sick", st.roster[2].PriorRemarks, "empty remarks keep stored remarks")
	assert.Equal(t, []int64{7}, cache.invalidated)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ch, err := q.Consume(cctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, EventSubmitted, msg.Type)
	var evt SubmittedEvent
	require.NoError(t, msg.Decode(&evt))
	assert.Equal(t, res.SubmissionID, evt.SubmissionID)
	assert.Equal(t, int64(7), evt.SessionID)
	assert.Equal(t, 2, evt.Records)
}

func TestBulkMarkDoesNotBlockOnFullQueue(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(newMemStore(), queue.NewInMemory(1), nil, zap.New(core))
	svc.publishTimeout = 50 * time.Millisecond
	req := BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}}}

	_, err := svc.BulkMark(context.Background(), ownerID, 7, req)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.BulkMark(context.Background(), ownerID, 7, req)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err, "committed submission must succeed")
	case <-time.After(time.Second):
		t.Fatal("BulkMark blocked on a full queue")
	}
	assert.Equal(t, 1, logs.FilterMessage("publish submission event failed").Len())
}

func TestBulkMarkPublishesAfterCallerCancels(t *testing.T) {
	q := queue.NewInMemory(1)
	svc := NewService(newMemStore(), q, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.BulkMark(ctx, ownerID, 7, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}}})
	require.NoError(t, err)

	cctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	ch, err := q.Consume(cctx)
	require.NoError(t, err)
	msg, ok := <-ch
	require.True(t, ok, "event was not published")
	assert.Equal(t, EventSubmitted, msg.Type)
}

func TestBulkMarkRejects(t *testing.T) {
	tests := []struct {
		name    string
		teacher int64
		req     BulkMarkRequest
		code    Code
	}{
		{"empty", ownerID, BulkMarkRequest{}, CodeInvalidArgument},
		{"bad status", ownerID, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "sleeping"}}}, CodeInvalidArgument},
		{"zero student", ownerID, BulkMarkRequest{AttendanceRecords: []MarkRecord{{Status: "present"}}}, CodeInvalidArgument},
		{"duplicate", ownerID, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}, {StudentID: 1, Status: "absent"}}}, CodeInvalidArgument},
		{"not owner", otherID, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}}}, CodeForbidden},
		{"not enrolled", ownerID, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}, {StudentID: 42, Status: "absent"}}}, CodeUnprocessable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			svc := NewService(st, nil, nil, nil)
			_, err := svc.BulkMark(context.Background(), tt.teacher, 7, tt.req)
			assert.Equal(t, tt.code, apiCode(t, err))
			assert.Zero(t, st.saves)
			assert.Equal(t, marking.StatusUnset, st.roster[0].PriorStatus)
		})
	}
}

func TestBulkMarkNotEnrolledDetails(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	_, err := svc.BulkMark(context.Background(), ownerID, 7, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 42, Status: "present"}}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, toHTTPStatus(err))
	assert.Equal(t, map[string]any{"studentIds": []int64{42}}, errorBody(err).Details)
}

func TestBulkMarkStoreFailureIsInternal(t *testing.T) {
	st := newMemStore()
	st.saveErr = errors.New("connection reset")
	svc := NewService(st, nil, nil, nil)
	_, err := svc.BulkMark(context.Background(), ownerID, 7, BulkMarkRequest{AttendanceRecords: []MarkRecord{{StudentID: 1, Status: "present"}}})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, toHTTPStatus(err))
	assert.Equal(t, CodeInternal, errorBody(err).Code)
	assert.NotContains(t, errorBody(err).Message, "connection reset")
}

func TestMarkAllDrivesSession(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, nil, nil, nil)

	stats, err := svc.MarkAll(context.Background(), marking.Actor{TeacherID: ownerID}, 7, MarkAllRequest{Status: "Absent"})
	require.NoError(t, err)
	assert.Equal(t, marking.Statistics{Absent: 3, Total: 3}, stats)
	assert.Equal(t, 1, st.saves)
	for _, e := range st.roster {
		assert.Equal(t, marking.StatusAbsent, e.PriorStatus)
	}
	assert.Equal(t, "sick", st.roster[2].PriorRemarks)
}

func TestMarkAllErrors(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.MarkAll(ctx, marking.Actor{TeacherID: ownerID}, 7, MarkAllRequest{Status: "late"})
	assert.Equal(t, CodeInvalidArgument, apiCode(t, err))

	_, err = svc.MarkAll(ctx, marking.Actor{TeacherID: otherID}, 7, MarkAllRequest{Status: "present"})
	assert.Equal(t, CodeForbidden, apiCode(t, err))
	assert.Equal(t, http.StatusForbidden, toHTTPStatus(err))
}

func TestMarkAllEmptyRosterSubmitsNothing(t *testing.T) {
	st := newMemStore()
	st.roster = nil
	svc := NewService(st, nil, nil, nil)
	stats, err := svc.MarkAll(context.Background(), marking.Actor{TeacherID: ownerID}, 7, MarkAllRequest{Status: "present"})
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, st.saves)
}

func TestReportUsesCache(t *testing.T) {
	st := newMemStore()
	cache := newMapCache()
	svc := NewService(st, nil, cache, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	rep, err := svc.Report(ctx, ownerID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unmarked)
	assert.Equal(t, 33.33, rep.Percentage)
	assert.Equal(t, "Amina Okello", rep.Students[0].StudentName)
	assert.Equal(t, "sick", rep.Students[2].Remarks)
	require.Contains(t, cache.reports, int64(7))

	// A cached report is returned even after the store changes.
	st.roster[0].PriorStatus = marking.StatusPresent
	rep, err = svc.Report(ctx, ownerID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unmarked)

	refreshed, err := svc.RefreshReport(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.Unmarked)
	assert.Equal(t, 66.67, refreshed.Percentage)

	_, err = svc.Report(ctx, otherID, 7)
	assert.Equal(t, CodeForbidden, apiCode(t, err))
}

func TestReportCacheErrorFallsBack(t *testing.T) {
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(newMemStore(), nil, cache, nil)
	rep, err := svc.Report(context.Background(), ownerID, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Statistics.Total)
}

func TestAttendedPercentage(t *testing.T) {
	assert.Equal(t, 0.0, attendedPercentage(marking.Statistics{}))
	assert.Equal(t, 75.0, attendedPercentage(marking.Statistics{Present: 1, Late: 1, Excused: 1, Absent: 1, Total: 4}))
}

func strPtr(v string) *string { return &v }

func TestUpdateRecord(t *testing.T) {
	st := newMemStore()
	cache := newMapCache()
	svc := NewService(st, nil, cache, nil)
	ctx := context.Background()

	rec, err := svc.UpdateRecord(ctx, ownerID, 100, UpdateAttendanceRequest{Status: strPtr(" Excused ")})
	require.NoError(t, err)
	assert.Equal(t, marking.StatusExcused, rec.Status)
	assert.Equal(t, "sick", rec.Remarks, "nil remarks leave the stored remarks")
	assert.Equal(t, []int64{7}, cache.invalidated)

	rec, err = svc.UpdateRecord(ctx, ownerID, 100, UpdateAttendanceRequest{Remarks: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, marking.StatusExcused, rec.Status)
	assert.Empty(t, rec.Remarks)
}

func TestUpdateRecordRejects(t *testing.T) {
	tests := []struct {
		name    string
		teacher int64
		id      int64
		req     UpdateAttendanceRequest
		code    Code
	}{
		{"no fields", ownerID, 100, UpdateAttendanceRequest{}, CodeInvalidArgument},
		{"empty status", ownerID, 100, UpdateAttendanceRequest{Status: strPtr("")}, CodeInvalidArgument},
		{"bad status", ownerID, 100, UpdateAttendanceRequest{Status: strPtr("asleep")}, CodeInvalidArgument},
		{"long remarks", ownerID, 100, UpdateAttendanceRequest{Remarks: strPtr(strings.Repeat("x", 1001))}, CodeInvalidArgument},
		{"missing record", ownerID, 999, UpdateAttendanceRequest{Status: strPtr("present")}, CodeNotFound},
		{"other teacher", otherID, 100, UpdateAttendanceRequest{Status: strPtr("present")}, CodeForbidden},
		{"session gone", ownerID, 101, UpdateAttendanceRequest{Status: strPtr("present")}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			svc := NewService(st, nil, nil, nil)
			_, err := svc.UpdateRecord(context.Background(), tt.teacher, tt.id, tt.req)
			assert.Equal(t, tt.code, apiCode(t, err))
			assert.Equal(t, marking.StatusAbsent, st.records[100].Status)
		})
	}
}

func TestCourseStats(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	ctx := context.Background()

	stats, err := svc.CourseStats(ctx, ownerID, 3)
	require.NoError(t, err)
	assert.Equal(t, CourseInfo{ID: 3, Code: "CS101", Title: "Intro"}, stats.Course)
	assert.Equal(t, CourseOverall{TotalStudents: 2, TotalSessions: 4, AverageAttendance: 75}, stats.Overall)
	require.Len(t, stats.Students, 2)
	assert.Equal(t, StudentCourseStat{
		StudentID: 1, StudentName: "Amina Okello", AdmissionNo: "ADM-001",
		Present: 3, Late: 1, TotalSessions: 4, Percentage: 100,
	}, stats.Students[0])
	assert.Equal(t, 50.0, stats.Students[1].Percentage, "unmarked sessions count against the student")

	_, err = svc.CourseStats(ctx, otherID, 3)
	assert.Equal(t, CodeForbidden, apiCode(t, err))
	_, err = svc.CourseStats(ctx, ownerID, 42)
	assert.Equal(t, CodeNotFound, apiCode(t, err))
}

func TestCourseStatsWithoutSessions(t *testing.T) {
	st := newMemStore()
	st.sessionsN = 0
	st.tallies = []StudentTally{{StudentID: 1}}
	stats, err := NewService(st, nil, nil, nil).CourseStats(context.Background(), ownerID, 3)
	require.NoError(t, err)
	assert.Zero(t, stats.Overall.AverageAttendance)
	assert.Zero(t, stats.Students[0].Percentage)
}
