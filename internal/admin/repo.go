package admin

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository reads accounts and aggregate counters from Postgres.
type Repository struct {
	*auth.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: auth.NewRepository(db), db: db}
}

// ListUsers returns accounts matching the filter, newest first.
func (r *Repository) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	where := sq.And{}
	if f.Role != "" {
		where = append(where, sq.Eq{"role": string(f.Role)})
	}
	if f.Active != nil {
		where = append(where, sq.Eq{"is_active": *f.Active})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("users").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(auth.UserColumns).From("users").Where(where).
		OrderBy("created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// SetUserRole updates a user's role.
func (r *Repository) SetUserRole(ctx context.Context, id string, role model.Role, at time.Time) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, apperr.NotFound("user")
	}
	u, err := auth.ScanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET role = $2, updated_at = $3 WHERE id = $1
		RETURNING `+auth.UserColumns, id, string(role), at))
	if err != nil {
		return model.User{}, store.NotFound(err, "user")
	}
	return u, nil
}

// SetUserActive flips the active flag.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool, at time.Time) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, apperr.NotFound("user")
	}
	u, err := auth.ScanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1
		RETURNING `+auth.UserColumns, id, active, at))
	if err != nil {
		return model.User{}, store.NotFound(err, "user")
	}
	return u, nil
}

// AdminStats aggregates users, courses and enrollments.
func (r *Repository) AdminStats(ctx context.Context) (model.AdminStats, error) {
	var s model.AdminStats
	s.Users.ByRole = map[model.Role]int{}

	rows, err := r.db.QueryContext(ctx, `SELECT role, COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users GROUP BY role`)
	if err != nil {
		return model.AdminStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var total, active int
		if err := rows.Scan(&role, &total, &active); err != nil {
			return model.AdminStats{}, err
		}
		s.Users.ByRole[model.Role(role)] = total
		s.Users.Total += total
		s.Users.Active += active
	}
	if err := rows.Err(); err != nil {
		return model.AdminStats{}, err
	}

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM courses`).Scan(&s.Courses.Total, &s.Courses.Active); err != nil {
		return model.AdminStats{}, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments`).Scan(&s.Enrollments.Total); err != nil {
		return model.AdminStats{}, err
	}
	return s, nil
}
