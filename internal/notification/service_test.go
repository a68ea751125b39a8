package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

func principal(t *testing.T, m *memory.Store, email string) *model.Principal {
	t.Helper()
	u, err := m.CreateUser(context.Background(), model.UserCredentials{
		User: model.User{FirstName: "F", LastName: "L", Email: email, Role: model.RoleStudent, IsActive: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := model.PrincipalFor(u, model.AuthJWT)
	return &p
}

func TestInbox(t *testing.T) {
	t.Parallel()
	m := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	me := principal(t, m, "me@campus.edu")
	them := principal(t, m, "them@campus.edu")

	var ns []model.Notification
	for i, title := range []string{"first", "second", "third"} {
		ns = append(ns, model.Notification{RecipientID: me.UserID, Title: title, Type: model.NotifySystem, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	ns = append(ns, model.Notification{RecipientID: them.UserID, Title: "theirs", Type: model.NotifySystem, CreatedAt: base})
	if err := m.CreateNotifications(ctx, ns); err != nil {
		t.Fatal(err)
	}

	svc := notification.NewService(m, func() time.Time { return base.Add(24 * time.Hour) }, logging.Discard())
	inbox, page, err := svc.List(ctx, me, false, model.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox.Items) != 3 || inbox.UnreadCount != 3 || page.Total != 3 || inbox.Items[0].Title != "third" {
		t.Fatalf("inbox = %+v page = %+v", inbox, page)
	}

	theirs, _, _ := svc.List(ctx, them, false, model.PageRequest{})
	if _, err := svc.MarkRead(ctx, me, theirs.Items[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("foreign mark read: %v", err)
	}
	if err := svc.Delete(ctx, me, theirs.Items[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("foreign delete: %v", err)
	}

	read, err := svc.MarkRead(ctx, me, inbox.Items[0].ID)
	if err != nil || !read.IsRead || read.ReadAt == nil {
		t.Fatalf("mark read = %+v, %v", read, err)
	}
	unread, _, _ := svc.List(ctx, me, true, model.PageRequest{})
	if len(unread.Items) != 2 || unread.UnreadCount != 2 {
		t.Fatalf("unread inbox = %+v", unread)
	}

	n, err := svc.MarkAllRead(ctx, me)
	if err != nil || n != 2 {
		t.Fatalf("mark all = %d, %v", n, err)
	}
	if err := svc.Delete(ctx, me, inbox.Items[1].ID); err != nil {
		t.Fatal(err)
	}
	after, _, _ := svc.List(ctx, me, false, model.PageRequest{})
	if len(after.Items) != 2 || after.UnreadCount != 0 {
		t.Fatalf("after = %+v", after)
	}
	if _, _, err := svc.List(ctx, nil, false, model.PageRequest{}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("anonymous: %v", err)
	}
	if _, err := svc.MarkRead(ctx, nil, inbox.Items[0].ID); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("anonymous mark read: %v", err)
	}
	if err := svc.Delete(ctx, nil, inbox.Items[0].ID); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("anonymous delete: %v", err)
	}
}
