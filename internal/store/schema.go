package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id    BIGSERIAL PRIMARY KEY,
	code  TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS course_offerings (
	id         BIGSERIAL PRIMARY KEY,
	course_id  BIGINT NOT NULL REFERENCES courses(id),
	teacher_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS class_sessions (
	id                 BIGSERIAL PRIMARY KEY,
	course_offering_id BIGINT NOT NULL REFERENCES course_offerings(id),
	session_date       DATE NOT NULL,
	start_time         TEXT NOT NULL DEFAULT '',
	room               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS students (
	id           BIGSERIAL PRIMARY KEY,
	admission_no TEXT NOT NULL UNIQUE,
	first_name   TEXT NOT NULL,
	last_name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	course_offering_id BIGINT NOT NULL REFERENCES course_offerings(id),
	student_id         BIGINT NOT NULL REFERENCES students(id),
	status             TEXT NOT NULL DEFAULT 'active',
	PRIMARY KEY (course_offering_id, student_id)
);

CREATE TABLE IF NOT EXISTS student_attendance (
	id               BIGSERIAL PRIMARY KEY,
	student_id       BIGINT NOT NULL REFERENCES students(id),
	class_session_id BIGINT NOT NULL REFERENCES class_sessions(id),
	attendance_date  DATE NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('present', 'absent', 'late', 'excused')),
	remarks          TEXT,
	marked_by        BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (student_id, class_session_id)
);

CREATE INDEX IF NOT EXISTS idx_attendance_session ON student_attendance(class_session_id);
`

// Migrate creates the tables used by the attendance service if missing.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
