package memory

import (
	"context"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// CreateNotifications inserts a batch.
func (s *Store) CreateNotifications(_ context.Context, ns []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range ns {
		n.ID = s.newID(n.ID)
		if n.RelatedResource != nil {
			ref := *n.RelatedResource
			n.RelatedResource = &ref
		}
		s.notifications[n.ID] = n
	}
	return nil
}

// ListNotifications returns one page of a recipient's inbox plus total and unread counts.
func (s *Store) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, page model.PageRequest) ([]model.Notification, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Notification{}
	unread := 0
	for _, n := range s.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if !n.IsRead {
			unread++
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	newestFirst(s, out, func(n model.Notification) time.Time { return n.CreatedAt }, func(n model.Notification) string { return n.ID })
	return model.Paginate(out, page), len(out), unread, nil
}

// MarkNotificationRead flags one notification as read. The first read time is kept.
func (s *Store) MarkNotificationRead(_ context.Context, id, recipientID string, at time.Time) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return model.Notification{}, apperr.NotFound("notification")
	}
	n.IsRead = true
	if n.ReadAt == nil {
		n.ReadAt = timePtr(at)
	}
	s.notifications[id] = n
	return n, nil
}

// MarkAllNotificationsRead flags every unread notification of a recipient.
func (s *Store) MarkAllNotificationsRead(_ context.Context, recipientID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, n := range s.notifications {
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		n.IsRead = true
		n.ReadAt = timePtr(at)
		s.notifications[id] = n
		changed++
	}
	return changed, nil
}

// DeleteNotification removes one notification of a recipient.
func (s *Store) DeleteNotification(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return apperr.NotFound("notification")
	}
	delete(s.notifications, id)
	return nil
}
