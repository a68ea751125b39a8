package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists enrollments in Postgres alongside the course roster.
type Repository struct {
	*course.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: course.NewRepository(db), db: db}
}

const columns = `id, student_id, course_id, semester, year, status, enrolled_at, dropped_at, completed_at, attendance_percentage, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Enrollment, error) {
	var e model.Enrollment
	var semester, status string
	var dropped, completed sql.NullTime
	if err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &semester, &e.Year, &status, &e.EnrolledAt, &dropped, &completed, &e.AttendancePercentage, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Enrollment{}, err
	}
	e.Semester = model.Semester(semester)
	e.Status = model.EnrollmentStatus(status)
	if dropped.Valid {
		t := dropped.Time
		e.DroppedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		e.CompletedAt = &t
	}
	return e, nil
}

// takeSeat appends the student to the roster only while a seat is free and the student
// is not already on it. The caller must be inside a transaction.
func takeSeat(ctx context.Context, tx *sql.Tx, studentID, courseID string) (model.Semester, int, error) {
	var semester string
	var year int
	err := tx.QueryRowContext(ctx, `
		UPDATE courses
		SET enrolled_ids = array_append(enrolled_ids, $2::uuid), updated_at = NOW()
		WHERE id = $1 AND is_active
			AND cardinality(enrolled_ids) < capacity
			AND NOT ($2::uuid = ANY(enrolled_ids))
		RETURNING semester, year`, courseID, studentID).Scan(&semester, &year)
	if err == nil {
		return model.Semester(semester), year, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", 0, err
	}

	var active, onRoster bool
	var size, capacity int
	err = tx.QueryRowContext(ctx, `
		SELECT is_active, cardinality(enrolled_ids), capacity, $2::uuid = ANY(enrolled_ids)
		FROM courses WHERE id = $1`, courseID, studentID).Scan(&active, &size, &capacity, &onRoster)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", 0, apperr.NotFound("course")
	case err != nil:
		return "", 0, err
	case !active:
		return "", 0, apperr.NotFound("course")
	case size >= capacity:
		return "", 0, apperr.ErrCourseFull
	case onRoster:
		return "", 0, apperr.ErrAlreadyEnrolled
	}
	return "", 0, apperr.ErrCourseFull
}

func releaseSeat(ctx context.Context, tx *sql.Tx, studentID, courseID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE courses SET enrolled_ids = array_remove(enrolled_ids, $2::uuid), updated_at = NOW()
		WHERE id = $1`, courseID, studentID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET enrolled_courses = array_remove(enrolled_courses, $2::uuid)
		WHERE id = $1`, studentID, courseID)
	return err
}

func addToCourseList(ctx context.Context, tx *sql.Tx, studentID, courseID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET enrolled_courses = array_append(enrolled_courses, $2::uuid)
		WHERE id = $1 AND NOT ($2::uuid = ANY(enrolled_courses))`, studentID, courseID)
	return err
}

// Enroll takes a seat, records the enrollment and updates the student's course list in one
// transaction. A dropped enrollment for the same term is reactivated.
func (r *Repository) Enroll(ctx context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error) {
	if _, err := uuid.Parse(courseID); err != nil {
		return model.Enrollment{}, apperr.NotFound("course")
	}
	var out model.Enrollment
	err := store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		semester, year, err := takeSeat(ctx, tx, studentID, courseID)
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO enrollments (id, student_id, course_id, semester, year, status, enrolled_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,'active',$6,$6,$6)
			ON CONFLICT ON CONSTRAINT enrollments_student_course_term_key DO UPDATE SET
				status = 'active',
				enrolled_at = EXCLUDED.enrolled_at,
				dropped_at = NULL,
				updated_at = EXCLUDED.updated_at
			WHERE enrollments.status = 'dropped'
			RETURNING `+columns,
			uuid.NewString(), studentID, courseID, string(semester), year, at)
		out, err = scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrAlreadyEnrolled
		}
		if err != nil {
			return err
		}
		return addToCourseList(ctx, tx, studentID, courseID)
	})
	if err != nil {
		return model.Enrollment{}, err
	}
	return out, nil
}

// Drop removes the student from the roster and course list and marks the enrollment dropped.
// The roster removal commits even when there is no active enrollment; NotFound is returned then.
func (r *Repository) Drop(ctx context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error) {
	if _, err := uuid.Parse(courseID); err != nil {
		return model.Enrollment{}, apperr.NotFound("course")
	}
	var out model.Enrollment
	missing := false
	err := store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		var semester string
		var year int
		err := tx.QueryRowContext(ctx, `SELECT semester, year FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&semester, &year)
		if err != nil {
			return store.NotFound(err, "course")
		}
		if err := releaseSeat(ctx, tx, studentID, courseID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE enrollments SET status = 'dropped', dropped_at = $5, updated_at = $5
			WHERE student_id = $1 AND course_id = $2 AND semester = $3 AND year = $4 AND status = 'active'
			RETURNING `+columns, studentID, courseID, semester, year, at)
		out, err = scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			missing = true
			return nil
		}
		return err
	})
	if err != nil {
		return model.Enrollment{}, err
	}
	if missing {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	return out, nil
}

// GetEnrollment returns a single enrollment.
func (r *Repository) GetEnrollment(ctx context.Context, id string) (model.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	e, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM enrollments WHERE id = $1`, id))
	if err != nil {
		return model.Enrollment{}, store.NotFound(err, "enrollment")
	}
	return e, nil
}

// ListEnrollments returns enrollments matching the filter, newest first.
func (r *Repository) ListEnrollments(ctx context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error) {
	where := sq.And{}
	if f.StudentID != "" {
		where = append(where, sq.Eq{"student_id": f.StudentID})
	}
	if f.CourseID != "" {
		where = append(where, sq.Eq{"course_id": f.CourseID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": string(f.Status)})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("enrollments").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("enrollments").Where(where).
		OrderBy("enrolled_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Enrollment{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// UpdateEnrollment changes status and attendance percentage. Leaving active releases the
// seat; returning to active takes one through the same capacity check as Enroll.
func (r *Repository) UpdateEnrollment(ctx context.Context, id string, patch model.EnrollmentPatch, at time.Time) (model.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	var out model.Enrollment
	err := store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scan(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return store.NotFound(err, "enrollment")
		}
		next := current.Status
		if patch.Status != nil {
			next = *patch.Status
		}
		switch {
		case current.Status == model.EnrollmentActive && next != model.EnrollmentActive:
			if err := releaseSeat(ctx, tx, current.StudentID, current.CourseID); err != nil {
				return err
			}
		case current.Status != model.EnrollmentActive && next == model.EnrollmentActive:
			if _, _, err := takeSeat(ctx, tx, current.StudentID, current.CourseID); err != nil && !errors.Is(err, apperr.ErrAlreadyEnrolled) {
				return err
			}
			if err := addToCourseList(ctx, tx, current.StudentID, current.CourseID); err != nil {
				return err
			}
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE enrollments SET
				status = $2,
				attendance_percentage = COALESCE($3, attendance_percentage),
				dropped_at = CASE WHEN $2 = 'dropped' AND status <> 'dropped' THEN $4 WHEN $2 = 'active' THEN NULL ELSE dropped_at END,
				completed_at = CASE WHEN $2 = 'completed' AND status <> 'completed' THEN $4 ELSE completed_at END,
				updated_at = $4
			WHERE id = $1
			RETURNING `+columns, id, string(next), patch.AttendancePercentage, at)
		out, err = scan(row)
		return err
	})
	if err != nil {
		return model.Enrollment{}, err
	}
	return out, nil
}

// EnrollmentStats counts a course's enrollments per status.
func (r *Repository) EnrollmentStats(ctx context.Context, courseID string) (model.EnrollmentStats, error) {
	var st model.EnrollmentStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'dropped'),
			COUNT(*) FILTER (WHERE status = 'suspended'),
			COALESCE(ROUND(AVG(attendance_percentage), 2), 0)
		FROM enrollments WHERE course_id = $1`, courseID).
		Scan(&st.Total, &st.Active, &st.Completed, &st.Dropped, &st.Suspended, &st.AverageAttendance)
	return st, err
}

// SyncAttendancePercentages copies the attended percentage of each active enrollment
// from its attendance records and reports how many rows changed.
func (r *Repository) SyncAttendancePercentages(ctx context.Context, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments e
		SET attendance_percentage = s.pct, updated_at = $1
		FROM (
			SELECT student_id, course_id,
				ROUND(100.0 * COUNT(*) FILTER (WHERE status IN ('present', 'excused')) / COUNT(*), 2) AS pct
			FROM attendance
			GROUP BY student_id, course_id
		) s
		WHERE e.student_id = s.student_id AND e.course_id = s.course_id
			AND e.status = 'active' AND e.attendance_percentage <> s.pct`, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
