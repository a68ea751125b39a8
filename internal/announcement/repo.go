package announcement

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists announcements in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, title, content, author_id, category, target_roles, is_pinned, is_published, view_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Announcement, error) {
	var a model.Announcement
	var roles []string
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.AuthorID, &a.Category, store.Array(&roles), &a.IsPinned, &a.IsPublished, &a.ViewCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Announcement{}, err
	}
	a.TargetRoles = toRoles(roles)
	return a, nil
}

func toRoles(in []string) []model.Role {
	out := make([]model.Role, len(in))
	for i, r := range in {
		out[i] = model.Role(r)
	}
	return out
}

func fromRoles(in []model.Role) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = string(r)
	}
	return out
}

// CreateAnnouncement inserts an announcement.
func (r *Repository) CreateAnnouncement(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO announcements (id, title, content, author_id, category, target_roles, is_pinned, is_published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING `+columns,
		a.ID, a.Title, a.Content, a.AuthorID, a.Category, fromRoles(a.TargetRoles), a.IsPinned, a.IsPublished, a.CreatedAt)
	return scan(row)
}

// GetAnnouncement returns a single announcement.
func (r *Repository) GetAnnouncement(ctx context.Context, id string) (model.Announcement, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Announcement{}, apperr.NotFound("announcement")
	}
	a, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM announcements WHERE id = $1`, id))
	if err != nil {
		return model.Announcement{}, store.NotFound(err, "announcement")
	}
	return a, nil
}

// ListAnnouncements returns published announcements for a role, pinned first then newest.
func (r *Repository) ListAnnouncements(ctx context.Context, f model.AnnouncementFilter) ([]model.Announcement, int, error) {
	where := sq.And{}
	if f.Role != "" {
		where = append(where, sq.Eq{"is_published": true}, sq.Expr("? = ANY(target_roles)", string(f.Role)))
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("announcements").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("announcements").Where(where).
		OrderBy("is_pinned DESC", "created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Announcement{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// UpdateAnnouncement applies non-nil fields.
func (r *Repository) UpdateAnnouncement(ctx context.Context, id string, patch model.AnnouncementPatch, at time.Time) (model.Announcement, error) {
	var roles any
	if patch.TargetRoles != nil {
		roles = fromRoles(patch.TargetRoles)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE announcements SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			category = COALESCE($4, category),
			target_roles = COALESCE($5::text[], target_roles),
			is_pinned = COALESCE($6, is_pinned),
			updated_at = $7
		WHERE id = $1
		RETURNING `+columns, id, patch.Title, patch.Content, patch.Category, roles, patch.IsPinned, at)
	a, err := scan(row)
	if err != nil {
		return model.Announcement{}, store.NotFound(err, "announcement")
	}
	return a, nil
}

// DeleteAnnouncement removes an announcement.
func (r *Repository) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("announcement")
	}
	return nil
}

// RecordAnnouncementView counts the first view of each user.
func (r *Repository) RecordAnnouncementView(ctx context.Context, id, userID string) error {
	return store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO announcement_views (announcement_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE announcements SET view_count = view_count + 1 WHERE id = $1`, id)
		return err
	})
}
