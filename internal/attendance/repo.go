package attendance

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists attendance data in Postgres.
type Repository struct {
	*course.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: course.NewRepository(db), db: db}
}

const columns = `id, student_id, course_id, date, to_char(day, 'YYYY-MM-DD'), status, remarks, recorded_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Attendance, error) {
	var a model.Attendance
	var status string
	if err := row.Scan(&a.ID, &a.StudentID, &a.CourseID, &a.Date, &a.Day, &status, &a.Remarks, &a.RecordedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Attendance{}, err
	}
	a.Status = model.AttendanceStatus(status)
	return a, nil
}

// CreateAttendance writes a new record. The unique (student, course, day) index rejects duplicates.
func (r *Repository) CreateAttendance(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, student_id, course_id, date, day, status, remarks, recorded_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$9)
		RETURNING `+columns,
		a.ID, a.StudentID, a.CourseID, a.Date, a.Day, string(a.Status), a.Remarks, a.RecordedBy, a.CreatedAt)
	created, err := scan(row)
	if err != nil {
		return model.Attendance{}, store.MapUnique(err, map[string]error{"attendance_student_course_day_key": apperr.ErrDuplicateAttendance})
	}
	return created, nil
}

// GetAttendance returns a single record.
func (r *Repository) GetAttendance(ctx context.Context, id string) (model.Attendance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Attendance{}, apperr.NotFound("attendance record")
	}
	a, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM attendance WHERE id = $1`, id))
	if err != nil {
		return model.Attendance{}, store.NotFound(err, "attendance record")
	}
	return a, nil
}

// ListAttendance returns records with basic filters, newest day first.
func (r *Repository) ListAttendance(ctx context.Context, f model.AttendanceFilter) ([]model.Attendance, int, error) {
	where := sq.And{}
	if f.StudentID != "" {
		where = append(where, sq.Eq{"student_id": f.StudentID})
	}
	if f.CourseID != "" {
		where = append(where, sq.Eq{"course_id": f.CourseID})
	}
	if f.CourseIDs != nil {
		if len(f.CourseIDs) == 0 {
			return []model.Attendance{}, 0, nil
		}
		where = append(where, sq.Eq{"course_id": f.CourseIDs})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("attendance").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("attendance").Where(where).
		OrderBy("day DESC", "created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Attendance{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// StudentCourseAttendance returns every record of a student in a course, oldest first.
func (r *Repository) StudentCourseAttendance(ctx context.Context, studentID, courseID string) ([]model.Attendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM attendance
		WHERE student_id = $1 AND course_id = $2
		ORDER BY day`, studentID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Attendance{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAttendance sets status and remarks.
func (r *Repository) UpdateAttendance(ctx context.Context, id string, patch model.AttendancePatch, at time.Time) (model.Attendance, error) {
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance
		SET status = COALESCE($2, status), remarks = COALESCE($3, remarks), updated_at = $4
		WHERE id = $1
		RETURNING `+columns, id, status, patch.Remarks, at)
	a, err := scan(row)
	if err != nil {
		return model.Attendance{}, store.NotFound(err, "attendance record")
	}
	return a, nil
}

// DeleteAttendance removes a record.
func (r *Repository) DeleteAttendance(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("attendance record")
	}
	return nil
}
