package authz

import (
	"errors"
	"testing"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func principal(id string, role model.Role) *model.Principal {
	return &model.Principal{UserID: id, Role: role, Active: true, Method: model.AuthJWT}
}

func TestAuthorize_Matrix(t *testing.T) {
	t.Parallel()

	student := principal("s1", model.RoleStudent)
	faculty := principal("f1", model.RoleFaculty)
	admin := principal("a1", model.RoleAdmin)

	cases := []struct {
		name   string
		p      *model.Principal
		action Action
		res    Resource
		allow  bool
		reason string
		scope  Scope
	}{
		{"student cannot delete course", student, ActDelete, On(Course), false, ReasonRole, ScopeNone},
		{"faculty cannot create course", faculty, ActCreate, On(Course), false, ReasonRole, ScopeNone},
		{"admin creates course", admin, ActCreate, On(Course), true, "", ScopeAll},
		{"student reads course", student, ActRead, On(Course), true, "", ScopeAll},
		{"faculty updates own announcement", faculty, ActUpdate, Owned(Announcement, "f1"), true, "", ScopeAll},
		{"faculty updates other announcement", faculty, ActUpdate, Owned(Announcement, "f2"), false, ReasonOwnership, ScopeNone},
		{"admin updates any announcement", admin, ActUpdate, Owned(Announcement, "f2"), true, "", ScopeAll},
		{"student cannot create announcement", student, ActCreate, On(Announcement), false, ReasonRole, ScopeNone},
		{"faculty marks attendance", faculty, ActCreate, On(Attendance), true, "", ScopeAll},
		{"faculty marks attendance in taught course", faculty, ActCreate, Resource{Type: Attendance, InstructorID: "f1"}, true, "", ScopeAll},
		{"faculty cannot mark attendance in other course", faculty, ActCreate, Resource{Type: Attendance, InstructorID: "f2"}, false, ReasonNotInstructor, ScopeNone},
		{"faculty cannot upload to other course", faculty, ActCreate, Resource{Type: Material, InstructorID: "f2"}, false, ReasonNotInstructor, ScopeNone},
		{"student cannot mark attendance", student, ActCreate, On(Attendance), false, ReasonRole, ScopeNone},
		{"student reads own results", student, ActRead, Owned(Result, "s1"), true, "", ScopeSelf},
		{"student reads other results", student, ActRead, Owned(Result, "s2"), false, ReasonSelf, ScopeNone},
		{"student lists results narrows to self", student, ActList, On(Result), true, "", ScopeSelf},
		{"faculty lists results narrows to taught courses", faculty, ActList, On(Result), true, "", ScopeInstructed},
		{"faculty reads result in taught course", faculty, ActRead, Resource{Type: Result, OwnerID: "s1", InstructorID: "f1"}, true, "", ScopeInstructed},
		{"faculty reads result in other course", faculty, ActRead, Resource{Type: Result, OwnerID: "s1", InstructorID: "f9"}, false, ReasonNotInstructor, ScopeNone},
		{"faculty roster of own course", faculty, ActList, Resource{Type: Roster, InstructorID: "f1"}, true, "", ScopeInstructed},
		{"student cannot view roster", student, ActList, Resource{Type: Roster, InstructorID: "f1"}, false, ReasonRole, ScopeNone},
		{"student enrolls self", student, ActEnroll, Owned(Enrollment, "s1"), true, "", ScopeAll},
		{"student cannot enroll another", student, ActEnroll, Owned(Enrollment, "s2"), false, ReasonOwnership, ScopeNone},
		{"faculty cannot enroll", faculty, ActEnroll, Owned(Enrollment, "f1"), false, ReasonRole, ScopeNone},
		{"admin publishes results", admin, ActPublish, On(Result), true, "", ScopeAll},
		{"faculty cannot publish results", faculty, ActPublish, On(Result), false, ReasonRole, ScopeNone},
		{"faculty cannot delete event", faculty, ActDelete, Owned(Event, "f1"), false, ReasonRole, ScopeNone},
		{"student revokes own key", student, ActDelete, Owned(APIKey, "s1"), true, "", ScopeAll},
		{"student revokes other key", student, ActDelete, Owned(APIKey, "s2"), false, ReasonOwnership, ScopeNone},
		{"user deletes from inbox", student, ActDelete, On(Notification), true, "", ScopeAll},
		{"anonymous cannot touch inbox", nil, ActUpdate, On(Notification), false, ReasonUnauthenticated, ScopeNone},
		{"admin deletes any material", admin, ActDelete, Owned(Material, "f2"), true, "", ScopeAll},
		{"student cannot read stats", student, ActRead, On(Stats), false, ReasonRole, ScopeNone},
		{"unknown pair denied", student, ActPublish, On(Course), false, ReasonRole, ScopeNone},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := Authorize(tc.p, tc.action, tc.res)
			if d.Allowed != tc.allow {
				t.Fatalf("Allowed = %v, want %v (reason %q)", d.Allowed, tc.allow, d.Reason)
			}
			if d.Reason != tc.reason {
				t.Fatalf("Reason = %q, want %q", d.Reason, tc.reason)
			}
			if d.Scope != tc.scope {
				t.Fatalf("Scope = %v, want %v", d.Scope, tc.scope)
			}
		})
	}
}

func TestAuthorize_AdminAllowsEveryRule(t *testing.T) {
	t.Parallel()

	admin := principal("a1", model.RoleAdmin)
	for k := range rules {
		res := Resource{Type: k.t, OwnerID: "someone-else", InstructorID: "someone-else"}
		if d := Authorize(admin, k.a, res); !d.Allowed {
			t.Fatalf("admin denied %s %s: %s", k.a, k.t, d.Reason)
		}
	}
}

func TestAuthorize_Unauthenticated(t *testing.T) {
	t.Parallel()

	inactiveAdmin := principal("a1", model.RoleAdmin)
	inactiveAdmin.Active = false

	for _, p := range []*model.Principal{nil, {}, inactiveAdmin} {
		if d := Authorize(p, ActRead, On(Course)); d.Allowed || d.Reason != ReasonUnauthenticated {
			t.Fatalf("expected unauthenticated denial, got %+v", d)
		}
	}
	if d := Authorize(nil, ActLogin, On(Account)); !d.Allowed {
		t.Fatalf("login must be public")
	}
	if d := Authorize(nil, ActRegisterAccount, On(Account)); !d.Allowed {
		t.Fatalf("register must be public")
	}
}

func TestAuthorize_APIKeyPermissions(t *testing.T) {
	t.Parallel()

	readOnly := principal("a1", model.RoleAdmin)
	readOnly.Method = model.AuthAPIKey
	readOnly.KeyPermissions = []string{model.PermRead}

	if d := Authorize(readOnly, ActRead, On(Course)); !d.Allowed {
		t.Fatalf("read key should read courses: %s", d.Reason)
	}
	if d := Authorize(readOnly, ActCreate, On(Course)); d.Allowed || d.Reason != ReasonKeyPermission {
		t.Fatalf("read key must not create, got %+v", d)
	}
	if d := Authorize(readOnly, ActList, On(User)); d.Allowed {
		t.Fatalf("user admin requires admin key permission")
	}

	full := principal("s1", model.RoleStudent)
	full.Method = model.AuthAPIKey
	full.KeyPermissions = []string{model.PermAdmin}
	if d := Authorize(full, ActDelete, On(Course)); d.Allowed || d.Reason != ReasonRole {
		t.Fatalf("admin key does not lift role, got %+v", d)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	if _, err := Check(nil, ActRead, On(Course)); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	_, err := Check(principal("s1", model.RoleStudent), ActDelete, On(Course))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	scope, err := Check(principal("f1", model.RoleFaculty), ActList, On(Result))
	if err != nil || scope != ScopeInstructed {
		t.Fatalf("unexpected scope %v err %v", scope, err)
	}
}
