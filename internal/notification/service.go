package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// InboxStore reads and updates a recipient's notifications. Every method is scoped to
// recipientID, so entries of other users behave as missing.
type InboxStore interface {
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page model.PageRequest) ([]model.Notification, int, int, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) (model.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, id, recipientID string) error
}

// Inbox lists the caller's notifications with the unread count across all pages.
type Inbox struct {
	Items       []model.Notification `json:"notifications"`
	UnreadCount int                  `json:"unreadCount"`
}

// Service manages a user's inbox.
type Service struct {
	store  InboxStore
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an inbox service.
func NewService(store InboxStore, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, logger: logger}
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, p *model.Principal, unreadOnly bool, page model.PageRequest) (Inbox, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Notification)); err != nil {
		return Inbox{}, model.Pagination{}, err
	}
	page = page.Normalize()
	items, total, unread, err := s.store.ListNotifications(ctx, p.UserID, unreadOnly, page)
	if err != nil {
		return Inbox{}, model.Pagination{}, err
	}
	return Inbox{Items: items, UnreadCount: unread}, model.PaginationFor(page, total), nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, p *model.Principal, id string) (model.Notification, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.Notification)); err != nil {
		return model.Notification{}, err
	}
	return s.store.MarkNotificationRead(ctx, id, p.UserID, s.now().UTC())
}

// MarkAllRead marks every unread notification of the caller as read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, p *model.Principal) (int, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.Notification)); err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllNotificationsRead(ctx, p.UserID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	logging.Service(ctx, s.logger, "notification", "mark_all_read").Debug("inbox cleared", "user_id", p.UserID, "count", n)
	return n, nil
}

// Delete removes one of the caller's notifications.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	if _, err := authz.Check(p, authz.ActDelete, authz.On(authz.Notification)); err != nil {
		return err
	}
	return s.store.DeleteNotification(ctx, id, p.UserID)
}
