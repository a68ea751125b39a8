package result

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

// Repository persists results in Postgres.
type Repository struct {
	*course.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: course.NewRepository(db), db: db}
}

const columns = `id, student_id, course_id, semester, year, marks, grade, remarks, is_published, published_at, published_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Result, error) {
	var r model.Result
	var semester string
	var publishedAt sql.NullTime
	var publishedBy sql.NullString
	if err := row.Scan(&r.ID, &r.StudentID, &r.CourseID, &semester, &r.Year, &r.Marks, &r.Grade, &r.Remarks, &r.IsPublished, &publishedAt, &publishedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Result{}, err
	}
	r.Semester = model.Semester(semester)
	if publishedAt.Valid {
		t := publishedAt.Time
		r.PublishedAt = &t
	}
	r.PublishedBy = publishedBy.String
	return r, nil
}

// CreateResult inserts a draft result.
func (r *Repository) CreateResult(ctx context.Context, res model.Result) (model.Result, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO results (id, student_id, course_id, semester, year, marks, grade, remarks, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING `+columns,
		res.ID, res.StudentID, res.CourseID, string(res.Semester), res.Year, res.Marks, res.Grade, res.Remarks, res.CreatedAt)
	created, err := scan(row)
	if err != nil {
		return model.Result{}, store.MapUnique(err, map[string]error{"results_student_course_term_key": apperr.ErrDuplicateResult})
	}
	return created, nil
}

// GetResult returns a single result.
func (r *Repository) GetResult(ctx context.Context, id string) (model.Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Result{}, apperr.NotFound("result")
	}
	res, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM results WHERE id = $1`, id))
	if err != nil {
		return model.Result{}, store.NotFound(err, "result")
	}
	return res, nil
}

// ListResults returns results matching the filter, newest term first.
func (r *Repository) ListResults(ctx context.Context, f model.ResultFilter) ([]model.Result, int, error) {
	where := sq.And{}
	if f.StudentID != "" {
		where = append(where, sq.Eq{"student_id": f.StudentID})
	}
	if f.CourseID != "" {
		where = append(where, sq.Eq{"course_id": f.CourseID})
	}
	if f.CourseIDs != nil {
		if len(f.CourseIDs) == 0 {
			return []model.Result{}, 0, nil
		}
		where = append(where, sq.Eq{"course_id": f.CourseIDs})
	}
	if f.PublishedOnly {
		where = append(where, sq.Eq{"is_published": true})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("results").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("results").Where(where).
		OrderBy("year DESC", "created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Result{}
	for rows.Next() {
		res, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}

// UpdateResult edits an unpublished result. The publish check and the write are one statement.
func (r *Repository) UpdateResult(ctx context.Context, id string, patch model.ResultPatch, at time.Time) (model.Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Result{}, apperr.NotFound("result")
	}
	var grade *string
	if patch.Marks != nil {
		grade = &patch.Grade
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE results SET
			marks = COALESCE($2, marks),
			grade = COALESCE($3, grade),
			remarks = COALESCE($4, remarks),
			updated_at = $5
		WHERE id = $1 AND NOT is_published
		RETURNING `+columns, id, patch.Marks, grade, patch.Remarks, at)
	res, err := scan(row)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Result{}, err
	}
	if _, gerr := r.GetResult(ctx, id); gerr != nil {
		return model.Result{}, gerr
	}
	return model.Result{}, apperr.ErrResultPublished
}

// PublishResults flips unpublished results among ids and returns those that changed.
func (r *Repository) PublishResults(ctx context.Context, ids []string, by string, at time.Time) ([]model.Result, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	out := []model.Result{}
	if len(valid) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		UPDATE results SET is_published = TRUE, published_at = $2, published_by = $3, updated_at = $2
		WHERE id = ANY($1::uuid[]) AND NOT is_published
		RETURNING `+columns, valid, at, by)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		res, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// DeleteResult removes a result.
func (r *Repository) DeleteResult(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("result")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("result")
	}
	return nil
}
