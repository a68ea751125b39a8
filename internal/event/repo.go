package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ErrCapacityBelowRegistrations rejects shrinking an event below its registration count.
var ErrCapacityBelowRegistrations = apperr.Invalid("capacity", "cannot be lower than the current number of registrations")

// Repository persists events in Postgres. Registrations live in a JSONB array on the row.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, title, description, organizer_id, start_date, end_date, location, category, capacity, registrations, visible_to, is_published, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Event, error) {
	var e model.Event
	var regs []byte
	var visible []string
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.OrganizerID, &e.StartDate, &e.EndDate, &e.Location, &e.Category, &e.Capacity, &regs, store.Array(&visible), &e.IsPublished, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Event{}, err
	}
	e.Registrations = []model.Registration{}
	if len(regs) > 0 {
		if err := json.Unmarshal(regs, &e.Registrations); err != nil {
			return model.Event{}, err
		}
	}
	e.VisibleTo = make([]model.Role, len(visible))
	for i, r := range visible {
		e.VisibleTo[i] = model.Role(r)
	}
	return e, nil
}

func roleStrings(in []model.Role) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = string(r)
	}
	return out
}

// CreateEvent inserts an event with an empty registration list.
func (r *Repository) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, organizer_id, start_date, end_date, location, category, capacity, visible_to, is_published, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+columns,
		e.ID, e.Title, e.Description, e.OrganizerID, e.StartDate, e.EndDate, e.Location, e.Category, e.Capacity, roleStrings(e.VisibleTo), e.IsPublished, e.CreatedAt)
	return scan(row)
}

// GetEvent returns a single event.
func (r *Repository) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, apperr.NotFound("event")
	}
	e, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return model.Event{}, store.NotFound(err, "event")
	}
	return e, nil
}

// ListEvents returns events by start date.
func (r *Repository) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, int, error) {
	where := sq.And{}
	if !f.IncludeDrafts {
		where = append(where, sq.Eq{"is_published": true})
	}
	if f.Role != "" {
		where = append(where, sq.Expr("? = ANY(visible_to)", string(f.Role)))
	}
	if !f.From.IsZero() {
		where = append(where, sq.GtOrEq{"start_date": f.From})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("events").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := psql.Select(columns).From("events").Where(where).
		OrderBy("start_date ASC").Limit(uint64(page.Limit)).Offset(uint64(page.Offset())).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// UpdateEvent applies non-nil fields. A new capacity must hold every registration.
func (r *Repository) UpdateEvent(ctx context.Context, id string, patch model.EventPatch, at time.Time) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, apperr.NotFound("event")
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE events SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			location = COALESCE($4, location),
			capacity = COALESCE($5::int, capacity),
			is_published = COALESCE($6, is_published),
			updated_at = $7
		WHERE id = $1 AND ($5::int IS NULL OR $5::int >= jsonb_array_length(registrations))
		RETURNING `+columns, id, patch.Title, patch.Description, patch.Location, patch.Capacity, patch.IsPublished, at)
	e, err := scan(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, err
	}
	if _, gerr := r.GetEvent(ctx, id); gerr != nil {
		return model.Event{}, gerr
	}
	return model.Event{}, ErrCapacityBelowRegistrations
}

// DeleteEvent removes an event.
func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("event")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("event")
	}
	return nil
}

// RegisterForEvent appends a registration if there is room and the user holds no seat.
func (r *Repository) RegisterForEvent(ctx context.Context, eventID, userID string, at time.Time) (model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return model.Event{}, apperr.NotFound("event")
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE events SET
			registrations = registrations || jsonb_build_array(jsonb_build_object('userId', $2::text, 'registeredAt', $3::timestamptz)),
			updated_at = $3
		WHERE id = $1
			AND jsonb_array_length(registrations) < capacity
			AND NOT registrations @> jsonb_build_array(jsonb_build_object('userId', $2::text))
		RETURNING `+columns, eventID, userID, at)
	e, err := scan(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, err
	}
	cur, gerr := r.GetEvent(ctx, eventID)
	if gerr != nil {
		return model.Event{}, gerr
	}
	if cur.IsRegistered(userID) {
		return model.Event{}, apperr.ErrAlreadyRegistered
	}
	return model.Event{}, apperr.ErrEventFull
}

// UnregisterFromEvent removes the user's registration.
func (r *Repository) UnregisterFromEvent(ctx context.Context, eventID, userID string, at time.Time) (model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return model.Event{}, apperr.NotFound("event")
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE events SET
			registrations = COALESCE(
				(SELECT jsonb_agg(reg) FROM jsonb_array_elements(registrations) reg WHERE reg->>'userId' <> $2::text),
				'[]'::jsonb),
			updated_at = $3
		WHERE id = $1 AND registrations @> jsonb_build_array(jsonb_build_object('userId', $2::text))
		RETURNING `+columns, eventID, userID, at)
	e, err := scan(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, err
	}
	if _, gerr := r.GetEvent(ctx, eventID); gerr != nil {
		return model.Event{}, gerr
	}
	return model.Event{}, apperr.NotFound("registration")
}
