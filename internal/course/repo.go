package course

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists courses in Postgres. It embeds the user repository for instructor lookups.
type Repository struct {
	*auth.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: auth.NewRepository(db), db: db}
}

// Columns is the canonical select list for courses.
const Columns = `id, code, title, description, credits, instructor_id, department, semester, year, capacity, enrolled_ids, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// Scan reads a row selected with Columns.
func Scan(row scanner) (model.Course, error) {
	var c model.Course
	var semester string
	if err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.Credits, &c.InstructorID, &c.Department, &semester, &c.Year, &c.Capacity, store.Array(&c.EnrolledIDs), &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Course{}, err
	}
	c.Semester = model.Semester(semester)
	if c.EnrolledIDs == nil {
		c.EnrolledIDs = []string{}
	}
	return c, nil
}

// CreateCourse inserts a course. A duplicate code yields ErrCourseCodeTaken.
func (r *Repository) CreateCourse(ctx context.Context, c model.Course) (model.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, code, title, description, credits, instructor_id, department, semester, year, capacity, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+Columns,
		c.ID, c.Code, c.Title, c.Description, c.Credits, c.InstructorID, c.Department, string(c.Semester), c.Year, c.Capacity, c.IsActive, c.CreatedAt)
	created, err := Scan(row)
	if err != nil {
		return model.Course{}, store.MapUnique(err, map[string]error{"courses_code_key": apperr.ErrCourseCodeTaken})
	}
	return created, nil
}

// GetCourse returns a single course.
func (r *Repository) GetCourse(ctx context.Context, id string) (model.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Course{}, apperr.NotFound("course")
	}
	c, err := Scan(r.db.QueryRowContext(ctx, `SELECT `+Columns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		return model.Course{}, store.NotFound(err, "course")
	}
	return c, nil
}

// ListCourses returns active courses matching the filter, newest first.
func (r *Repository) ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, int, error) {
	where := sq.And{sq.Eq{"is_active": true}}
	if f.Department != "" {
		where = append(where, sq.Eq{"department": f.Department})
	}
	if f.Semester != "" {
		where = append(where, sq.Eq{"semester": string(f.Semester)})
	}
	if f.InstructorID != "" {
		where = append(where, sq.Eq{"instructor_id": f.InstructorID})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("courses").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(Columns).From("courses").Where(where).
		OrderBy("created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Course{}
	for rows.Next() {
		c, err := Scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CourseIDsByInstructor returns the ids of every course taught by instructorID.
func (r *Repository) CourseIDsByInstructor(ctx context.Context, instructorID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM courses WHERE instructor_id = $1`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateCourse applies non-nil fields. The capacity guard runs in the same statement
// as the write so a concurrent enrollment cannot slip past it.
func (r *Repository) UpdateCourse(ctx context.Context, id string, patch model.CoursePatch, at time.Time) (model.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Course{}, apperr.NotFound("course")
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE courses SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			credits = COALESCE($4, credits),
			capacity = COALESCE($5, capacity),
			is_active = COALESCE($6, is_active),
			updated_at = $7
		WHERE id = $1 AND ($5::int IS NULL OR $5::int >= cardinality(enrolled_ids))
		RETURNING `+Columns,
		id, patch.Title, patch.Description, patch.Credits, patch.Capacity, patch.IsActive, at)
	c, err := Scan(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, err
	}
	if _, gerr := r.GetCourse(ctx, id); gerr != nil {
		return model.Course{}, gerr
	}
	return model.Course{}, ErrCapacityBelowRoster
}

// DeleteCourse removes a course and strips it from every student's course list.
func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("course")
	}
	return store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("course")
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET enrolled_courses = array_remove(enrolled_courses, $1::uuid)
			WHERE $1::uuid = ANY(enrolled_courses)`, id)
		return err
	})
}
