package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/admin"
	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

func seed(t *testing.T, m *memory.Store, email string, role model.Role) *model.Principal {
	t.Helper()
	u, err := m.CreateUser(context.Background(), model.UserCredentials{
		User: model.User{FirstName: "F", LastName: "L", Email: email, Role: role, IsActive: true, CreatedAt: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := model.PrincipalFor(u, model.AuthJWT)
	return &p
}

func TestAdminOnly(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := admin.NewService(m, nil, logging.Discard())
	ctx := context.Background()
	faculty := seed(t, m, "f@campus.edu", model.RoleFaculty)

	if _, _, err := svc.ListUsers(ctx, faculty, model.UserFilter{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty list users: %v", err)
	}
	if _, err := svc.Stats(ctx, faculty); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty stats: %v", err)
	}
	if _, err := svc.Deactivate(ctx, nil, faculty.UserID); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("anonymous deactivate: %v", err)
	}
}

func TestManageUsers(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := admin.NewService(m, nil, logging.Discard())
	ctx := context.Background()
	root := seed(t, m, "root@campus.edu", model.RoleAdmin)
	s1 := seed(t, m, "s1@campus.edu", model.RoleStudent)
	seed(t, m, "s2@campus.edu", model.RoleStudent)

	students, pg, err := svc.ListUsers(ctx, root, model.UserFilter{Role: model.RoleStudent})
	if err != nil || len(students) != 2 || pg.Total != 2 {
		t.Fatalf("list students = %d (%+v), %v", len(students), pg, err)
	}
	if _, _, err := svc.ListUsers(ctx, root, model.UserFilter{Role: "dean"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad role filter: %v", err)
	}

	u, err := svc.ChangeRole(ctx, root, s1.UserID, model.RoleFaculty)
	if err != nil || u.Role != model.RoleFaculty {
		t.Fatalf("change role = %+v, %v", u, err)
	}
	if _, err := svc.ChangeRole(ctx, root, root.UserID, model.RoleStudent); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("self demotion: %v", err)
	}
	if _, err := svc.Deactivate(ctx, root, root.UserID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("self deactivation: %v", err)
	}

	u, err = svc.Deactivate(ctx, root, s1.UserID)
	if err != nil || u.IsActive {
		t.Fatalf("deactivate = %+v, %v", u, err)
	}
	active := false
	inactive, _, err := svc.ListUsers(ctx, root, model.UserFilter{Active: &active})
	if err != nil || len(inactive) != 1 || inactive[0].ID != s1.UserID {
		t.Fatalf("inactive users = %+v, %v", inactive, err)
	}

	st, err := svc.Stats(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if st.Users.Total != 3 || st.Users.Active != 2 || st.Users.ByRole[model.RoleFaculty] != 1 {
		t.Fatalf("stats = %+v", st.Users)
	}

	if _, err := svc.Activate(ctx, root, s1.UserID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetUser(ctx, root, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}
}
