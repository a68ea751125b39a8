package announcement

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
)

// Store persists announcements.
type Store interface {
	CreateAnnouncement(ctx context.Context, a model.Announcement) (model.Announcement, error)
	GetAnnouncement(ctx context.Context, id string) (model.Announcement, error)
	ListAnnouncements(ctx context.Context, f model.AnnouncementFilter) ([]model.Announcement, int, error)
	UpdateAnnouncement(ctx context.Context, id string, patch model.AnnouncementPatch, at time.Time) (model.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id string) error
	RecordAnnouncementView(ctx context.Context, id, userID string) error
}

// CreateInput is a new announcement.
type CreateInput struct {
	Title       string
	Content     string
	Category    string
	TargetRoles []model.Role
	IsPinned    bool
}

var defaultAudience = []model.Role{model.RoleStudent, model.RoleFaculty}

// Service manages announcements.
type Service struct {
	store    Store
	notifier notification.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates an announcement service.
func NewService(store Store, notifier notification.Notifier, now func() time.Time, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, notifier: notifier, now: now, logger: logger}
}

// Create publishes an announcement and notifies its audience.
func (s *Service) Create(ctx context.Context, p *model.Principal, in CreateInput) (model.Announcement, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Announcement)); err != nil {
		return model.Announcement{}, err
	}
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if strings.TrimSpace(in.Content) == "" {
		fields["content"] = "required"
	}
	if in.Category == "" {
		in.Category = model.CategoryGeneral
	}
	if !model.ValidAnnouncementCategory(in.Category) {
		fields["category"] = "must be one of academic event maintenance general urgent"
	}
	roles, ok := audience(in.TargetRoles)
	if !ok {
		fields["targetRoles"] = "must contain only student faculty admin"
	}
	if len(fields) > 0 {
		return model.Announcement{}, apperr.Validation(fields)
	}

	now := s.now().UTC()
	a, err := s.store.CreateAnnouncement(ctx, model.Announcement{
		Title:       strings.TrimSpace(in.Title),
		Content:     strings.TrimSpace(in.Content),
		AuthorID:    p.UserID,
		Category:    in.Category,
		TargetRoles: roles,
		IsPinned:    in.IsPinned,
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Announcement{}, err
	}
	logging.Service(ctx, s.logger, "announcement", "create").Info("announcement created", "announcement_id", a.ID, "author_id", p.UserID)

	s.notifier.Notify(ctx, notification.Dispatch{
		Roles:      a.TargetRoles,
		ExcludeIDs: []string{p.UserID},
		Title:      a.Title,
		Message:    preview(a.Content),
		Type:       model.NotifyAnnouncement,
		Resource:   notification.Ref("announcement", a.ID),
	})
	return a, nil
}

// List returns the announcements addressed to the caller's role, pinned first.
// Admins see every announcement.
func (s *Service) List(ctx context.Context, p *model.Principal, category string, page model.PageRequest) ([]model.Announcement, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Announcement)); err != nil {
		return nil, model.Pagination{}, err
	}
	f := model.AnnouncementFilter{Category: category, Page: page.Normalize()}
	if !p.IsAdmin() {
		f.Role = p.Role
	}
	items, total, err := s.store.ListAnnouncements(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// Get returns one announcement and records a distinct view by the caller.
func (s *Service) Get(ctx context.Context, p *model.Principal, id string) (model.Announcement, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.Announcement)); err != nil {
		return model.Announcement{}, err
	}
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		return model.Announcement{}, err
	}
	if !p.IsAdmin() && a.AuthorID != p.UserID && (!a.IsPublished || !model.ContainsRole(a.TargetRoles, p.Role)) {
		return model.Announcement{}, apperr.NotFound("announcement")
	}
	if err := s.store.RecordAnnouncementView(ctx, id, p.UserID); err != nil {
		logging.Service(ctx, s.logger, "announcement", "get").Warn("record view failed", "announcement_id", id, "error", err)
		return a, nil
	}
	return s.store.GetAnnouncement(ctx, id)
}

// Update edits an announcement. Only its author or an admin may do so.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, patch model.AnnouncementPatch) (model.Announcement, error) {
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		return model.Announcement{}, err
	}
	if _, err := authz.Check(p, authz.ActUpdate, authz.Owned(authz.Announcement, a.AuthorID)); err != nil {
		return model.Announcement{}, err
	}
	if patch.Category != nil && !model.ValidAnnouncementCategory(*patch.Category) {
		return model.Announcement{}, apperr.Invalid("category", "must be one of academic event maintenance general urgent")
	}
	if patch.TargetRoles != nil {
		roles, ok := audience(patch.TargetRoles)
		if !ok {
			return model.Announcement{}, apperr.Invalid("targetRoles", "must contain only student faculty admin")
		}
		patch.TargetRoles = roles
	}
	if (patch.Title != nil && strings.TrimSpace(*patch.Title) == "") || (patch.Content != nil && strings.TrimSpace(*patch.Content) == "") {
		return model.Announcement{}, apperr.Invalid("title", "title and content must not be empty")
	}
	return s.store.UpdateAnnouncement(ctx, id, patch, s.now().UTC())
}

// Delete removes an announcement. Only its author or an admin may do so.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		return err
	}
	if _, err := authz.Check(p, authz.ActDelete, authz.Owned(authz.Announcement, a.AuthorID)); err != nil {
		return err
	}
	return s.store.DeleteAnnouncement(ctx, id)
}

func audience(roles []model.Role) ([]model.Role, bool) {
	if len(roles) == 0 {
		return append([]model.Role(nil), defaultAudience...), true
	}
	out := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			return nil, false
		}
		if !model.ContainsRole(out, r) {
			out = append(out, r)
		}
	}
	return out, true
}

func preview(s string) string {
	const max = 140
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
