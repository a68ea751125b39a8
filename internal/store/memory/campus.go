package memory

import (
	"context"
	"sort"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func cloneAnnouncement(a model.Announcement) model.Announcement {
	a.TargetRoles = cloneRoles(a.TargetRoles)
	return a
}

func cloneEvent(e model.Event) model.Event {
	regs := make([]model.Registration, len(e.Registrations))
	copy(regs, e.Registrations)
	e.Registrations = regs
	e.VisibleTo = cloneRoles(e.VisibleTo)
	return e
}

// CreateAnnouncement inserts an announcement.
func (s *Store) CreateAnnouncement(_ context.Context, a model.Announcement) (model.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.newID(a.ID)
	a.TargetRoles = cloneRoles(a.TargetRoles)
	s.announcements[a.ID] = a
	return cloneAnnouncement(a), nil
}

// GetAnnouncement returns a single announcement.
func (s *Store) GetAnnouncement(_ context.Context, id string) (model.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok {
		return model.Announcement{}, apperr.NotFound("announcement")
	}
	return cloneAnnouncement(a), nil
}

// ListAnnouncements returns announcements pinned first then newest.
func (s *Store) ListAnnouncements(_ context.Context, f model.AnnouncementFilter) ([]model.Announcement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Announcement{}
	for _, a := range s.announcements {
		if f.Role != "" && (!a.IsPublished || !model.ContainsRole(a.TargetRoles, f.Role)) {
			continue
		}
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		out = append(out, cloneAnnouncement(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.ord[out[i].ID] > s.ord[out[j].ID]
	})
	return model.Paginate(out, f.Page), len(out), nil
}

// UpdateAnnouncement applies non-nil fields.
func (s *Store) UpdateAnnouncement(_ context.Context, id string, patch model.AnnouncementPatch, at time.Time) (model.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok {
		return model.Announcement{}, apperr.NotFound("announcement")
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Content != nil {
		a.Content = *patch.Content
	}
	if patch.Category != nil {
		a.Category = *patch.Category
	}
	if patch.TargetRoles != nil {
		a.TargetRoles = cloneRoles(patch.TargetRoles)
	}
	if patch.IsPinned != nil {
		a.IsPinned = *patch.IsPinned
	}
	a.UpdatedAt = at
	s.announcements[id] = a
	return cloneAnnouncement(a), nil
}

// DeleteAnnouncement removes an announcement and its views.
func (s *Store) DeleteAnnouncement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.announcements[id]; !ok {
		return apperr.NotFound("announcement")
	}
	delete(s.announcements, id)
	for k := range s.views {
		if k.announcementID == id {
			delete(s.views, k)
		}
	}
	return nil
}

// RecordAnnouncementView counts the first view of each user.
func (s *Store) RecordAnnouncementView(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok {
		return apperr.NotFound("announcement")
	}
	k := viewKey{id, userID}
	if s.views[k] {
		return nil
	}
	s.views[k] = true
	a.ViewCount++
	s.announcements[id] = a
	return nil
}

// CreateEvent inserts an event with an empty registration list.
func (s *Store) CreateEvent(_ context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.newID(e.ID)
	e.Registrations = []model.Registration{}
	e.VisibleTo = cloneRoles(e.VisibleTo)
	s.events[e.ID] = e
	return cloneEvent(e), nil
}

// GetEvent returns a single event.
func (s *Store) GetEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, apperr.NotFound("event")
	}
	return cloneEvent(e), nil
}

// ListEvents returns events by start date.
func (s *Store) ListEvents(_ context.Context, f model.EventFilter) ([]model.Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Event{}
	for _, e := range s.events {
		if !f.IncludeDrafts && !e.IsPublished {
			continue
		}
		if f.Role != "" && !model.ContainsRole(e.VisibleTo, f.Role) {
			continue
		}
		if !f.From.IsZero() && e.StartDate.Before(f.From) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return s.ord[out[i].ID] < s.ord[out[j].ID]
	})
	return model.Paginate(out, f.Page), len(out), nil
}

// UpdateEvent applies non-nil fields. A new capacity must hold every registration.
func (s *Store) UpdateEvent(_ context.Context, id string, patch model.EventPatch, at time.Time) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, apperr.NotFound("event")
	}
	if patch.Capacity != nil && *patch.Capacity < len(e.Registrations) {
		return model.Event{}, event.ErrCapacityBelowRegistrations
	}
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Location != nil {
		e.Location = *patch.Location
	}
	if patch.Capacity != nil {
		e.Capacity = *patch.Capacity
	}
	if patch.IsPublished != nil {
		e.IsPublished = *patch.IsPublished
	}
	e.UpdatedAt = at
	s.events[id] = e
	return cloneEvent(e), nil
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return apperr.NotFound("event")
	}
	delete(s.events, id)
	return nil
}

// RegisterForEvent takes a seat if there is room and the user holds none.
func (s *Store) RegisterForEvent(_ context.Context, eventID, userID string, at time.Time) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	switch {
	case !ok:
		return model.Event{}, apperr.NotFound("event")
	case e.IsRegistered(userID):
		return model.Event{}, apperr.ErrAlreadyRegistered
	case len(e.Registrations) >= e.Capacity:
		return model.Event{}, apperr.ErrEventFull
	}
	e = cloneEvent(e)
	e.Registrations = append(e.Registrations, model.Registration{UserID: userID, RegisteredAt: at})
	e.UpdatedAt = at
	s.events[eventID] = e
	return cloneEvent(e), nil
}

// UnregisterFromEvent removes the user's registration.
func (s *Store) UnregisterFromEvent(_ context.Context, eventID, userID string, at time.Time) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return model.Event{}, apperr.NotFound("event")
	}
	if !e.IsRegistered(userID) {
		return model.Event{}, apperr.NotFound("registration")
	}
	regs := make([]model.Registration, 0, len(e.Registrations)-1)
	for _, r := range e.Registrations {
		if r.UserID != userID {
			regs = append(regs, r)
		}
	}
	e.Registrations = regs
	e.UpdatedAt = at
	s.events[eventID] = e
	return cloneEvent(e), nil
}

// CreateMaterial inserts a material.
func (s *Store) CreateMaterial(_ context.Context, m model.Material) (model.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[m.CourseID]; !ok {
		return model.Material{}, apperr.NotFound("course")
	}
	m.ID = s.newID(m.ID)
	s.materials[m.ID] = m
	return m, nil
}

// GetMaterial returns a single material.
func (s *Store) GetMaterial(_ context.Context, id string) (model.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return model.Material{}, apperr.NotFound("material")
	}
	return m, nil
}

// ListMaterials returns a course's materials, newest first.
func (s *Store) ListMaterials(_ context.Context, f model.MaterialFilter) ([]model.Material, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Material{}
	for _, m := range s.materials {
		if m.CourseID != f.CourseID {
			continue
		}
		if !f.IncludeDrafts && !m.IsPublished {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		out = append(out, m)
	}
	newestFirst(s, out, func(m model.Material) time.Time { return m.CreatedAt }, func(m model.Material) string { return m.ID })
	return model.Paginate(out, f.Page), len(out), nil
}

// UpdateMaterial applies non-nil fields.
func (s *Store) UpdateMaterial(_ context.Context, id string, patch model.MaterialPatch, at time.Time) (model.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return model.Material{}, apperr.NotFound("material")
	}
	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.DueDate != nil {
		m.DueDate = timePtr(*patch.DueDate)
	}
	if patch.IsPublished != nil {
		m.IsPublished = *patch.IsPublished
	}
	m.UpdatedAt = at
	s.materials[id] = m
	return m, nil
}

// DeleteMaterial removes a material.
func (s *Store) DeleteMaterial(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.materials[id]; !ok {
		return apperr.NotFound("material")
	}
	delete(s.materials, id)
	return nil
}

// IncrementMaterialDownloads bumps the download counter.
func (s *Store) IncrementMaterialDownloads(_ context.Context, id string) (model.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return model.Material{}, apperr.NotFound("material")
	}
	m.DownloadCount++
	s.materials[id] = m
	return m, nil
}
