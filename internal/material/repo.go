package material

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

// Repository persists materials in Postgres.
type Repository struct {
	*course.Repository
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{Repository: course.NewRepository(db), db: db}
}

const columns = `id, course_id, title, description, type, file_name, file_size, file_url, uploader_id, due_date, is_published, download_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Material, error) {
	var m model.Material
	var due sql.NullTime
	if err := row.Scan(&m.ID, &m.CourseID, &m.Title, &m.Description, &m.Type, &m.FileName, &m.FileSize, &m.FileURL, &m.UploaderID, &due, &m.IsPublished, &m.DownloadCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.Material{}, err
	}
	if due.Valid {
		t := due.Time
		m.DueDate = &t
	}
	return m, nil
}

// CreateMaterial inserts a material.
func (r *Repository) CreateMaterial(ctx context.Context, m model.Material) (model.Material, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO materials (id, course_id, title, description, type, file_name, file_size, file_url, uploader_id, due_date, is_published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+columns,
		m.ID, m.CourseID, m.Title, m.Description, m.Type, m.FileName, m.FileSize, m.FileURL, m.UploaderID, m.DueDate, m.IsPublished, m.CreatedAt)
	return scan(row)
}

// GetMaterial returns a single material.
func (r *Repository) GetMaterial(ctx context.Context, id string) (model.Material, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Material{}, apperr.NotFound("material")
	}
	m, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM materials WHERE id = $1`, id))
	if err != nil {
		return model.Material{}, store.NotFound(err, "material")
	}
	return m, nil
}

// ListMaterials returns a course's materials, newest first.
func (r *Repository) ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, int, error) {
	where := sq.And{sq.Eq{"course_id": f.CourseID}}
	if !f.IncludeDrafts {
		where = append(where, sq.Eq{"is_published": true})
	}
	if f.Type != "" {
		where = append(where, sq.Eq{"type": f.Type})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("materials").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("materials").Where(where).
		OrderBy("created_at DESC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Material{}
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// UpdateMaterial applies non-nil fields.
func (r *Repository) UpdateMaterial(ctx context.Context, id string, patch model.MaterialPatch, at time.Time) (model.Material, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Material{}, apperr.NotFound("material")
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE materials SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			type = COALESCE($4, type),
			due_date = COALESCE($5, due_date),
			is_published = COALESCE($6, is_published),
			updated_at = $7
		WHERE id = $1
		RETURNING `+columns, id, patch.Title, patch.Description, patch.Type, patch.DueDate, patch.IsPublished, at)
	m, err := scan(row)
	if err != nil {
		return model.Material{}, store.NotFound(err, "material")
	}
	return m, nil
}

// DeleteMaterial removes a material.
func (r *Repository) DeleteMaterial(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("material")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("material")
	}
	return nil
}

// IncrementMaterialDownloads bumps the download counter.
func (r *Repository) IncrementMaterialDownloads(ctx context.Context, id string) (model.Material, error) {
	m, err := scan(r.db.QueryRowContext(ctx, `
		UPDATE materials SET download_count = download_count + 1 WHERE id = $1
		RETURNING `+columns, id))
	if err != nil {
		return model.Material{}, store.NotFound(err, "material")
	}
	return m, nil
}
