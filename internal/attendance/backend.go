package attendance

import (
	"context"

	"classroll/internal/marking"
)

// Backend returns the service as a marking roster provider and attendance
// store, for driving a marking session inside this process.
func (s *Service) Backend() *LocalBackend {
	return &LocalBackend{svc: s}
}

// LocalBackend adapts Service to marking.RosterProvider and
// marking.AttendanceStore.
type LocalBackend struct {
	svc *Service
}

var (
	_ marking.RosterProvider  = (*LocalBackend)(nil)
	_ marking.AttendanceStore = (*LocalBackend)(nil)
)

func (b *LocalBackend) LoadRoster(ctx context.Context, actor marking.Actor, sessionID int64) (marking.Roster, error) {
	resp, err := b.svc.GetRoster(ctx, actor.TeacherID, sessionID)
	if err != nil {
		return marking.Roster{}, err
	}
	return marking.Roster{Session: resp.Session, Entries: resp.Students}, nil
}

func (b *LocalBackend) SubmitAttendance(ctx context.Context, actor marking.Actor, sessionID int64, records []marking.SubmissionRecord) error {
	req := BulkMarkRequest{AttendanceRecords: make([]MarkRecord, 0, len(records))}
	for _, r := range records {
		req.AttendanceRecords = append(req.AttendanceRecords, MarkRecord{
			StudentID: r.StudentID,
			Status:    string(r.Status),
			Remarks:   r.Remarks,
		})
	}
	_, err := b.svc.BulkMark(ctx, actor.TeacherID, sessionID, req)
	return err
}
