package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
)

// Store persists events. RegisterForEvent must take a seat only while the registration
// list is below capacity and does not already hold the user, in one atomic step.
type Store interface {
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, int, error)
	UpdateEvent(ctx context.Context, id string, patch model.EventPatch, at time.Time) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	RegisterForEvent(ctx context.Context, eventID, userID string, at time.Time) (model.Event, error)
	UnregisterFromEvent(ctx context.Context, eventID, userID string, at time.Time) (model.Event, error)
}

// CreateInput is a new event.
type CreateInput struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	Location    string
	Category    string
	Capacity    int
	VisibleTo   []model.Role
}

var defaultVisibility = []model.Role{model.RoleStudent, model.RoleFaculty}

// Service manages campus events.
type Service struct {
	store    Store
	notifier notification.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates an event service.
func NewService(store Store, notifier notification.Notifier, now func() time.Time, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, notifier: notifier, now: now, logger: logger}
}

// Create schedules an event and announces it to the roles that can see it.
func (s *Service) Create(ctx context.Context, p *model.Principal, in CreateInput) (model.Event, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Event)); err != nil {
		return model.Event{}, err
	}
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		fields["startDate"] = "start and end dates are required"
	} else if !in.StartDate.Before(in.EndDate) {
		fields["endDate"] = "must be after startDate"
	}
	if in.Capacity < 1 {
		fields["capacity"] = "must be at least 1"
	}
	if in.Category == "" {
		in.Category = "other"
	}
	if !model.ValidEventCategory(in.Category) {
		fields["category"] = "must be one of " + strings.Join(model.EventCategories, " ")
	}
	visible, ok := roles(in.VisibleTo)
	if !ok {
		fields["visibleTo"] = "must contain only student faculty admin"
	}
	if len(fields) > 0 {
		return model.Event{}, apperr.Validation(fields)
	}

	now := s.now().UTC()
	e, err := s.store.CreateEvent(ctx, model.Event{
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		OrganizerID:   p.UserID,
		StartDate:     in.StartDate.UTC(),
		EndDate:       in.EndDate.UTC(),
		Location:      strings.TrimSpace(in.Location),
		Category:      in.Category,
		Capacity:      in.Capacity,
		Registrations: []model.Registration{},
		VisibleTo:     visible,
		IsPublished:   true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return model.Event{}, err
	}
	logging.Service(ctx, s.logger, "event", "create").Info("event created", "event_id", e.ID, "organizer_id", p.UserID)

	s.notifier.Notify(ctx, notification.Dispatch{
		Roles:      e.VisibleTo,
		ExcludeIDs: []string{p.UserID},
		Title:      fmt.Sprintf("New %s event", e.Category),
		Message:    fmt.Sprintf("%s on %s at %s.", e.Title, e.StartDate.Format("Jan 2, 2006 15:04"), orTBA(e.Location)),
		Type:       model.NotifyEvent,
		Resource:   notification.Ref("event", e.ID),
	})
	return e, nil
}

// List returns upcoming published events visible to the caller, soonest first.
// Admins also see drafts and past events.
func (s *Service) List(ctx context.Context, p *model.Principal, category string, page model.PageRequest) ([]model.Event, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Event)); err != nil {
		return nil, model.Pagination{}, err
	}
	f := model.EventFilter{Category: category, Page: page.Normalize()}
	if p.IsAdmin() {
		f.IncludeDrafts = true
	} else {
		f.Role = p.Role
		f.From = s.now().UTC()
	}
	items, total, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// Get returns one event if it is visible to the caller.
func (s *Service) Get(ctx context.Context, p *model.Principal, id string) (model.Event, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.Event)); err != nil {
		return model.Event{}, err
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if !visibleTo(e, p) {
		return model.Event{}, apperr.NotFound("event")
	}
	return e, nil
}

// Update edits an event. Only the organizer or an admin may do so.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, patch model.EventPatch) (model.Event, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if _, err := authz.Check(p, authz.ActUpdate, authz.Owned(authz.Event, e.OrganizerID)); err != nil {
		return model.Event{}, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Event{}, apperr.Invalid("title", "must not be empty")
	}
	if patch.Capacity != nil && *patch.Capacity < 1 {
		return model.Event{}, apperr.Invalid("capacity", "must be at least 1")
	}
	return s.store.UpdateEvent(ctx, id, patch, s.now().UTC())
}

// Delete removes an event. Admin only.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	if _, err := authz.Check(p, authz.ActDelete, authz.On(authz.Event)); err != nil {
		return err
	}
	return s.store.DeleteEvent(ctx, id)
}

// Register takes a seat for the caller.
func (s *Service) Register(ctx context.Context, p *model.Principal, id string) (model.Event, error) {
	e, err := s.registrable(ctx, p, id)
	if err != nil {
		return model.Event{}, err
	}
	if !e.EndDate.After(s.now()) {
		return model.Event{}, apperr.Invalid("eventId", "event has already ended")
	}
	out, err := s.store.RegisterForEvent(ctx, id, p.UserID, s.now().UTC())
	if err != nil {
		return model.Event{}, err
	}
	logging.Service(ctx, s.logger, "event", "register").Info("registered for event", "event_id", id, "user_id", p.UserID)
	return out, nil
}

// Unregister releases the caller's seat.
func (s *Service) Unregister(ctx context.Context, p *model.Principal, id string) (model.Event, error) {
	if _, err := s.registrable(ctx, p, id); err != nil {
		return model.Event{}, err
	}
	return s.store.UnregisterFromEvent(ctx, id, p.UserID, s.now().UTC())
}

func (s *Service) registrable(ctx context.Context, p *model.Principal, id string) (model.Event, error) {
	if _, err := authz.Check(p, authz.ActRegister, authz.On(authz.Event)); err != nil {
		return model.Event{}, err
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if !visibleTo(e, p) {
		return model.Event{}, apperr.NotFound("event")
	}
	return e, nil
}

func visibleTo(e model.Event, p *model.Principal) bool {
	if p.IsAdmin() || e.OrganizerID == p.UserID {
		return true
	}
	return e.IsPublished && model.ContainsRole(e.VisibleTo, p.Role)
}

func roles(in []model.Role) ([]model.Role, bool) {
	if len(in) == 0 {
		return append([]model.Role(nil), defaultVisibility...), true
	}
	out := make([]model.Role, 0, len(in))
	for _, r := range in {
		if !r.Valid() {
			return nil, false
		}
		if !model.ContainsRole(out, r) {
			out = append(out, r)
		}
	}
	return out, true
}

func orTBA(s string) string {
	if s == "" {
		return "a location to be announced"
	}
	return s
}
