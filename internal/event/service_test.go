package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []notification.Dispatch
}

func (r *recorder) Notify(_ context.Context, d notification.Dispatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
}

func seedUser(t *testing.T, m *memory.Store, email string, role model.Role) *model.Principal {
	t.Helper()
	u, err := m.CreateUser(context.Background(), model.UserCredentials{
		User: model.User{FirstName: "F", LastName: "L", Email: email, Role: role, IsActive: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := model.PrincipalFor(u, model.AuthJWT)
	return &p
}

func fair(capacity int) event.CreateInput {
	return event.CreateInput{
		Title:     "Career Fair",
		StartDate: now.Add(9 * 24 * time.Hour),
		EndDate:   now.Add(9*24*time.Hour + 4*time.Hour),
		Location:  "Main Hall",
		Category:  "academic",
		Capacity:  capacity,
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()
	m := memory.New()
	rec := &recorder{}
	svc := event.NewService(m, rec, func() time.Time { return now }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)

	e, err := svc.Create(ctx, prof, event.CreateInput{Title: "Hackathon", StartDate: now.Add(time.Hour), EndDate: now.Add(3 * time.Hour), Capacity: 50})
	if err != nil {
		t.Fatal(err)
	}
	if e.Category != "other" || len(e.VisibleTo) != 2 || !e.IsPublished || len(e.Registrations) != 0 {
		t.Fatalf("event = %+v", e)
	}
	if len(rec.sent) != 1 || rec.sent[0].ExcludeIDs[0] != prof.UserID || rec.sent[0].Title != "New other event" {
		t.Fatalf("dispatches = %+v", rec.sent)
	}
	if _, err := svc.Create(ctx, student, fair(10)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("student create: %v", err)
	}

	tests := []struct {
		name  string
		in    event.CreateInput
		field string
	}{
		{"no title", event.CreateInput{StartDate: now, EndDate: now.Add(time.Hour), Capacity: 1}, "title"},
		{"end before start", event.CreateInput{Title: "x", StartDate: now.Add(time.Hour), EndDate: now, Capacity: 1}, "endDate"},
		{"no dates", event.CreateInput{Title: "x", Capacity: 1}, "startDate"},
		{"zero capacity", event.CreateInput{Title: "x", StartDate: now, EndDate: now.Add(time.Hour)}, "capacity"},
		{"bad category", event.CreateInput{Title: "x", StartDate: now, EndDate: now.Add(time.Hour), Capacity: 1, Category: "gala"}, "category"},
		{"bad role", event.CreateInput{Title: "x", StartDate: now, EndDate: now.Add(time.Hour), Capacity: 1, VisibleTo: []model.Role{"alumni"}}, "visibleTo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, prof, tt.in)
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation || ae.Fields[tt.field] == "" {
				t.Fatalf("err = %v, want validation on %s", err, tt.field)
			}
		})
	}
}

func TestRegistration(t *testing.T) {
	t.Parallel()
	m := memory.New()
	clock := now
	svc := event.NewService(m, nil, func() time.Time { return clock }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	a := seedUser(t, m, "a@campus.edu", model.RoleStudent)
	b := seedUser(t, m, "b@campus.edu", model.RoleStudent)
	c := seedUser(t, m, "c@campus.edu", model.RoleStudent)

	e, err := svc.Create(ctx, prof, fair(2))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, a, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, a, e.ID); !errors.Is(err, apperr.ErrAlreadyRegistered) {
		t.Fatalf("repeat: %v", err)
	}
	got, err := svc.Register(ctx, b, e.ID)
	if err != nil || len(got.Registrations) != 2 {
		t.Fatalf("second seat = %+v, %v", got, err)
	}
	if _, err := svc.Register(ctx, c, e.ID); !errors.Is(err, apperr.ErrEventFull) {
		t.Fatalf("full: %v", err)
	}
	if _, err := svc.Register(ctx, b, e.ID); !errors.Is(err, apperr.ErrAlreadyRegistered) {
		t.Fatalf("repeat on full event: %v", err)
	}

	small := 1
	if _, err := svc.Update(ctx, prof, e.ID, model.EventPatch{Capacity: &small}); !errors.Is(err, event.ErrCapacityBelowRegistrations) {
		t.Fatalf("shrink below registrations: %v", err)
	}

	if _, err := svc.Unregister(ctx, c, e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unregister without seat: %v", err)
	}
	if got, err := svc.Unregister(ctx, a, e.ID); err != nil || got.IsRegistered(a.UserID) {
		t.Fatalf("unregister = %+v, %v", got, err)
	}
	if _, err := svc.Register(ctx, c, e.ID); err != nil {
		t.Fatalf("freed seat: %v", err)
	}

	clock = e.EndDate.Add(time.Minute)
	if _, err := svc.Register(ctx, a, e.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("ended event: %v", err)
	}
}

func TestVisibility(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := event.NewService(m, nil, func() time.Time { return now }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	admin := seedUser(t, m, "admin@campus.edu", model.RoleAdmin)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)

	staffOnly := fair(5)
	staffOnly.Title = "Faculty meeting"
	staffOnly.VisibleTo = []model.Role{model.RoleFaculty}
	meeting, err := svc.Create(ctx, prof, staffOnly)
	if err != nil {
		t.Fatal(err)
	}
	open, err := svc.Create(ctx, prof, fair(5))
	if err != nil {
		t.Fatal(err)
	}
	past := fair(5)
	past.Title = "Orientation"
	past.StartDate = now.Add(-48 * time.Hour)
	past.EndDate = now.Add(-47 * time.Hour)
	if _, err := svc.Create(ctx, prof, past); err != nil {
		t.Fatal(err)
	}

	items, page, err := svc.List(ctx, student, "", model.PageRequest{})
	if err != nil || len(items) != 1 || items[0].ID != open.ID || page.Total != 1 {
		t.Fatalf("student list = %+v, %v", items, err)
	}
	if _, err := svc.Get(ctx, student, meeting.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("hidden event: %v", err)
	}
	if _, err := svc.Register(ctx, student, meeting.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("register hidden: %v", err)
	}
	if items, _, _ := svc.List(ctx, admin, "", model.PageRequest{}); len(items) != 3 {
		t.Fatalf("admin list = %d", len(items))
	}
	if items, _, _ := svc.List(ctx, prof, "sports", model.PageRequest{}); len(items) != 0 {
		t.Fatalf("category filter = %d", len(items))
	}

	if err := svc.Delete(ctx, prof, open.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty delete: %v", err)
	}
	if err := svc.Delete(ctx, admin, open.ID); err != nil {
		t.Fatal(err)
	}
}
