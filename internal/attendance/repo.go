package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"classroll/internal/marking"
	"classroll/internal/store"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetSession returns the session with its owning teacher, or nil when it does
// not exist.
func (r *Repository) GetSession(ctx context.Context, sessionID int64) (*ClassSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cs.id, cs.course_offering_id, co.teacher_id,
		       COALESCE(c.code, 'Unknown'), COALESCE(c.title, 'Unknown'),
		       to_char(cs.session_date, 'YYYY-MM-DD'), cs.start_time, cs.room
		FROM class_sessions cs
		JOIN course_offerings co ON co.id = cs.course_offering_id
		LEFT JOIN courses c ON c.id = co.course_id
		WHERE cs.id = $1
	`, sessionID)
	var s ClassSession
	if err := row.Scan(&s.ID, &s.CourseOfferingID, &s.TeacherID, &s.CourseCode, &s.CourseTitle, &s.SessionDate, &s.StartTime, &s.Room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListRoster returns the actively enrolled students of the session's
// offering together with any attendance already stored for that session.
func (r *Repository) ListRoster(ctx context.Context, session ClassSession) ([]marking.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.admission_no, s.first_name, s.last_name,
		       COALESCE(a.status, ''), COALESCE(a.remarks, '')
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		LEFT JOIN student_attendance a
		       ON a.student_id = s.id AND a.class_session_id = $1
		WHERE e.course_offering_id = $2 AND e.status = 'active'
		ORDER BY s.last_name, s.first_name, s.id
	`, session.ID, session.CourseOfferingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marking.RosterEntry
	for rows.Next() {
		var e marking.RosterEntry
		var status string
		if err := rows.Scan(&e.StudentID, &e.AdmissionNumber, &e.FirstName, &e.LastName, &status, &e.PriorRemarks); err != nil {
			return nil, err
		}
		e.PriorStatus = marking.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveAttendance upserts every record in one transaction. If any student is
// not actively enrolled nothing is written and a *NotEnrolledError is
// returned. Empty remarks keep the remarks already stored.
func (r *Repository) SaveAttendance(ctx context.Context, session ClassSession, teacherID int64, records []marking.SubmissionRecord) error {
	return store.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx store.DBTX) error {
		enrolled, err := activeEnrollments(ctx, tx, session.CourseOfferingID)
		if err != nil {
			return err
		}
		var missing []int64
		for _, rec := range records {
			if _, ok := enrolled[rec.StudentID]; !ok {
				missing = append(missing, rec.StudentID)
			}
		}
		if len(missing) > 0 {
			return &NotEnrolledError{StudentIDs: missing}
		}

		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO student_attendance
					(student_id, class_session_id, attendance_date, status, remarks, marked_by)
				VALUES ($1, $2, $3::date, $4, NULLIF($5, ''), $6)
				ON CONFLICT (student_id, class_session_id) DO UPDATE SET
					status     = EXCLUDED.status,
					remarks    = COALESCE(EXCLUDED.remarks, student_attendance.remarks),
					marked_by  = EXCLUDED.marked_by,
					updated_at = NOW()
			`, rec.StudentID, session.ID, session.SessionDate, string(rec.Status), rec.Remarks, teacherID); err != nil {
				return fmt.Errorf("upsert student %d: %w", rec.StudentID, err)
			}
		}
		return nil
	})
}

func activeEnrollments(ctx context.Context, tx store.DBTX, offeringID int64) (map[int64]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT student_id FROM enrollments
		WHERE course_offering_id = $1 AND status = 'active'
	`, offeringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// GetOffering returns the offering with its course, or nil when it does not
// exist.
func (r *Repository) GetOffering(ctx context.Context, offeringID int64) (*CourseOffering, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT co.id, co.teacher_id, COALESCE(c.code, 'Unknown'), COALESCE(c.title, 'Unknown')
		FROM course_offerings co
		LEFT JOIN courses c ON c.id = co.course_id
		WHERE co.id = $1
	`, offeringID)
	var o CourseOffering
	if err := row.Scan(&o.ID, &o.TeacherID, &o.CourseCode, &o.CourseTitle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// CourseTallies returns the number of sessions in the offering and, for each
// actively enrolled student, their stored marks across those sessions.
func (r *Repository) CourseTallies(ctx context.Context, offeringID int64) (int, []StudentTally, error) {
	var sessions int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM class_sessions WHERE course_offering_id = $1`, offeringID,
	).Scan(&sessions); err != nil {
		return 0, nil, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.admission_no, s.first_name, s.last_name,
		       COUNT(a.id) FILTER (WHERE a.status = 'present'),
		       COUNT(a.id) FILTER (WHERE a.status = 'absent'),
		       COUNT(a.id) FILTER (WHERE a.status = 'late'),
		       COUNT(a.id) FILTER (WHERE a.status = 'excused')
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		LEFT JOIN class_sessions cs ON cs.course_offering_id = e.course_offering_id
		LEFT JOIN student_attendance a
		       ON a.class_session_id = cs.id AND a.student_id = s.id
		WHERE e.course_offering_id = $1 AND e.status = 'active'
		GROUP BY s.id, s.admission_no, s.first_name, s.last_name
		ORDER BY s.last_name, s.first_name, s.id
	`, offeringID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var out []StudentTally
	for rows.Next() {
		var t StudentTally
		if err := rows.Scan(&t.StudentID, &t.AdmissionNumber, &t.FirstName, &t.LastName,
			&t.Present, &t.Absent, &t.Late, &t.Excused); err != nil {
			return 0, nil, err
		}
		out = append(out, t)
	}
	return sessions, out, rows.Err()
}

// GetAttendance returns one stored mark, or nil when it does not exist.
func (r *Repository) GetAttendance(ctx context.Context, id int64) (*AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, class_session_id, status, COALESCE(remarks, ''), marked_by
		FROM student_attendance WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateAttendance sets the non-nil fields of one mark and records who made
// the change.
func (r *Repository) UpdateAttendance(ctx context.Context, id int64, status *marking.Status, remarks *string, teacherID int64) (AttendanceRecord, error) {
	var st, rm any
	if status != nil {
		st = string(*status)
	}
	if remarks != nil {
		rm = *remarks
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE student_attendance SET
			status     = COALESCE($2::text, status),
			remarks    = COALESCE($3::text, remarks),
			marked_by  = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, student_id, class_session_id, status, COALESCE(remarks, ''), marked_by
	`, id, st, rm, teacherID)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (AttendanceRecord, error) {
	var rec AttendanceRecord
	var status string
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &status, &rec.Remarks, &rec.MarkedBy); err != nil {
		return AttendanceRecord{}, err
	}
	rec.Status = marking.Status(status)
	return rec, nil
}
