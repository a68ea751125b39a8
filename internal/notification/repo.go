package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

// Repository persists notifications in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, recipient_id, title, message, type, resource_type, resource_id, is_read, read_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Notification, error) {
	var n model.Notification
	var resType, resID sql.NullString
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &resType, &resID, &n.IsRead, &readAt, &n.CreatedAt); err != nil {
		return model.Notification{}, err
	}
	if resType.Valid {
		n.RelatedResource = &model.ResourceRef{Type: resType.String, ID: resID.String}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n, nil
}

// UserIDsByRoles returns active users holding any of roles.
func (r *Repository) UserIDsByRoles(ctx context.Context, roles []model.Role) ([]string, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users WHERE is_active AND role = ANY($1::text[])`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateNotifications inserts a batch atomically.
func (r *Repository) CreateNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return store.Tx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO notifications (id, recipient_id, title, message, type, resource_type, resource_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, n := range ns {
			if n.ID == "" {
				n.ID = uuid.NewString()
			}
			var resType, resID *string
			if n.RelatedResource != nil {
				resType, resID = &n.RelatedResource.Type, &n.RelatedResource.ID
			}
			if _, err := stmt.ExecContext(ctx, n.ID, n.RecipientID, n.Title, n.Message, n.Type, resType, resID, n.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListNotifications returns one page of a recipient's inbox plus total and unread counts.
func (r *Repository) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page model.PageRequest) ([]model.Notification, int, int, error) {
	var total, unread int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE $2 = FALSE OR NOT is_read), COUNT(*) FILTER (WHERE NOT is_read)
		FROM notifications WHERE recipient_id = $1`, recipientID, unreadOnly).Scan(&total, &unread); err != nil {
		return nil, 0, 0, err
	}
	page = page.Normalize()
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM notifications
		WHERE recipient_id = $1 AND ($2 = FALSE OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, recipientID, unreadOnly, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		out = append(out, n)
	}
	return out, total, unread, rows.Err()
}

// MarkNotificationRead flags one notification as read. The first read time is kept.
func (r *Repository) MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) (model.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Notification{}, apperr.NotFound("notification")
	}
	n, err := scan(r.db.QueryRowContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+columns, id, recipientID, at))
	if err != nil {
		return model.Notification{}, store.NotFound(err, "notification")
	}
	return n, nil
}

// MarkAllNotificationsRead flags every unread notification of a recipient.
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND NOT is_read`, recipientID, at)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteNotification removes one notification of a recipient.
func (r *Repository) DeleteNotification(ctx context.Context, id, recipientID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("notification")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}
