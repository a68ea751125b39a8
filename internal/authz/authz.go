// Package authz decides whether a principal may perform an action on a resource.
// Decisions are pure: no storage or transport is consulted.
package authz

import (
	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/metrics"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Action is the verb being authorized.
type Action string

const (
	ActRead            Action = "read"
	ActList            Action = "list"
	ActCreate          Action = "create"
	ActUpdate          Action = "update"
	ActDelete          Action = "delete"
	ActEnroll          Action = "enroll"
	ActDrop            Action = "drop"
	ActPublish         Action = "publish"
	ActRegister        Action = "register"
	ActRegisterAccount Action = "register-account"
	ActLogin           Action = "login"
)

// ResourceType names the kind of record being acted on.
type ResourceType string

const (
	Course       ResourceType = "course"
	Roster       ResourceType = "roster"
	Enrollment   ResourceType = "enrollment"
	Attendance   ResourceType = "attendance"
	Result       ResourceType = "result"
	Announcement ResourceType = "announcement"
	Event        ResourceType = "event"
	Material     ResourceType = "material"
	Notification ResourceType = "notification"
	APIKey       ResourceType = "api-key"
	User         ResourceType = "user"
	Profile      ResourceType = "profile"
	Stats        ResourceType = "stats"
	Account      ResourceType = "account"
)

// Resource describes the target. OwnerID is the author, organizer, uploader, key owner,
// recipient or, for personal records, the student the record belongs to. InstructorID is
// the instructor of the course the record hangs off, when known.
type Resource struct {
	Type         ResourceType
	OwnerID      string
	InstructorID string
}

// On is shorthand for a resource with no ownership context.
func On(t ResourceType) Resource { return Resource{Type: t} }

// Owned returns a resource owned by ownerID.
func Owned(t ResourceType, ownerID string) Resource { return Resource{Type: t, OwnerID: ownerID} }

// Scope tells list queries how far a permitted principal may see.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAll
	ScopeSelf
	ScopeInstructed
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
	Scope   Scope
}

// Denial reasons.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonKeyPermission   = "api key lacks permission"
	ReasonRole            = "role not permitted"
	ReasonOwnership       = "only the owner may modify this resource"
	ReasonSelf            = "may only access own records"
	ReasonNotInstructor   = "not the instructor of this course"
)

var (
	all         = []model.Role{model.RoleStudent, model.RoleFaculty, model.RoleAdmin}
	staff       = []model.Role{model.RoleFaculty, model.RoleAdmin}
	adminOnly   = []model.Role{model.RoleAdmin}
	studentOnly = []model.Role{model.RoleStudent}
)

type rule struct {
	roles []model.Role
	// owned requires OwnerID == principal for non-admins.
	owned bool
	// personal applies self-or-scope for non-admins.
	personal bool
	// instructed limits faculty to courses they teach when the instructor is known.
	instructed bool
}

type key struct {
	t ResourceType
	a Action
}

var rules = map[key]rule{
	{Profile, ActRead}:   {roles: all},
	{Profile, ActUpdate}: {roles: all, owned: true},

	{APIKey, ActCreate}: {roles: all},
	{APIKey, ActList}:   {roles: all},
	{APIKey, ActDelete}: {roles: all, owned: true},

	{Course, ActRead}:   {roles: all},
	{Course, ActList}:   {roles: all},
	{Course, ActCreate}: {roles: adminOnly},
	{Course, ActUpdate}: {roles: adminOnly},
	{Course, ActDelete}: {roles: adminOnly},

	{Roster, ActRead}: {roles: staff, personal: true},
	{Roster, ActList}: {roles: staff, personal: true},

	{Enrollment, ActEnroll}: {roles: studentOnly, owned: true},
	{Enrollment, ActDrop}:   {roles: studentOnly, owned: true},
	{Enrollment, ActRead}:   {roles: all, personal: true},
	{Enrollment, ActList}:   {roles: all, personal: true},
	{Enrollment, ActUpdate}: {roles: adminOnly},

	{Attendance, ActCreate}: {roles: staff, instructed: true},
	{Attendance, ActUpdate}: {roles: staff, instructed: true},
	{Attendance, ActDelete}: {roles: staff, instructed: true},
	{Attendance, ActRead}:   {roles: all, personal: true},
	{Attendance, ActList}:   {roles: staff, personal: true},

	{Result, ActRead}:    {roles: all, personal: true},
	{Result, ActList}:    {roles: all, personal: true},
	{Result, ActCreate}:  {roles: adminOnly},
	{Result, ActUpdate}:  {roles: adminOnly},
	{Result, ActDelete}:  {roles: adminOnly},
	{Result, ActPublish}: {roles: adminOnly},

	{Announcement, ActRead}:   {roles: all},
	{Announcement, ActList}:   {roles: all},
	{Announcement, ActCreate}: {roles: staff},
	{Announcement, ActUpdate}: {roles: staff, owned: true},
	{Announcement, ActDelete}: {roles: staff, owned: true},

	{Event, ActRead}:     {roles: all},
	{Event, ActList}:     {roles: all},
	{Event, ActCreate}:   {roles: staff},
	{Event, ActUpdate}:   {roles: staff, owned: true},
	{Event, ActDelete}:   {roles: adminOnly},
	{Event, ActRegister}: {roles: all},

	{Material, ActRead}:   {roles: all},
	{Material, ActList}:   {roles: all},
	{Material, ActCreate}: {roles: staff, instructed: true},
	{Material, ActUpdate}: {roles: staff, owned: true},
	{Material, ActDelete}: {roles: staff, owned: true},

	// Inbox queries are scoped to the caller's recipient id by the store.
	{Notification, ActList}:   {roles: all},
	{Notification, ActUpdate}: {roles: all},
	{Notification, ActDelete}: {roles: all},

	{User, ActRead}:   {roles: adminOnly},
	{User, ActList}:   {roles: adminOnly},
	{User, ActUpdate}: {roles: adminOnly},
	{Stats, ActRead}:  {roles: adminOnly},
}

// Public reports whether the action needs no principal at all.
func Public(action Action, res Resource) bool {
	return res.Type == Account && (action == ActRegisterAccount || action == ActLogin)
}

// Authorize evaluates the rules in order: authentication, API key permission, role,
// ownership, then self-or-scope. Admins skip the last three.
func Authorize(p *model.Principal, action Action, res Resource) Decision {
	if Public(action, res) {
		return allow(ScopeAll)
	}
	if p == nil || p.UserID == "" || !p.Active {
		return deny(ReasonUnauthenticated)
	}
	if p.Method == model.AuthAPIKey && !keyPermits(p.KeyPermissions, action, res.Type) {
		return deny(ReasonKeyPermission)
	}
	if p.Role == model.RoleAdmin {
		return allow(ScopeAll)
	}

	r, ok := rules[key{res.Type, action}]
	if !ok || !model.ContainsRole(r.roles, p.Role) {
		return deny(ReasonRole)
	}
	if r.owned && res.OwnerID != p.UserID {
		return deny(ReasonOwnership)
	}
	if r.instructed && p.Role == model.RoleFaculty && res.InstructorID != "" && res.InstructorID != p.UserID {
		return deny(ReasonNotInstructor)
	}
	if r.personal {
		return personal(p, res)
	}
	return allow(ScopeAll)
}

func personal(p *model.Principal, res Resource) Decision {
	if res.OwnerID != "" && res.OwnerID == p.UserID {
		return allow(ScopeSelf)
	}
	switch p.Role {
	case model.RoleFaculty:
		if res.InstructorID == "" || res.InstructorID == p.UserID {
			return allow(ScopeInstructed)
		}
		return deny(ReasonNotInstructor)
	case model.RoleStudent:
		if res.OwnerID == "" && res.Type != Roster {
			return allow(ScopeSelf)
		}
	}
	return deny(ReasonSelf)
}

// RequiredPermission maps an action to the API key permission it needs.
func RequiredPermission(action Action, t ResourceType) string {
	if t == User || t == Stats {
		return model.PermAdmin
	}
	switch action {
	case ActRead, ActList:
		return model.PermRead
	case ActDelete:
		return model.PermDelete
	}
	return model.PermWrite
}

func keyPermits(perms []string, action Action, t ResourceType) bool {
	need := RequiredPermission(action, t)
	for _, p := range perms {
		if p == need || p == model.PermAdmin {
			return true
		}
	}
	return false
}

// Check converts a denial into a typed error and counts it.
func Check(p *model.Principal, action Action, res Resource) (Scope, error) {
	d := Authorize(p, action, res)
	if d.Allowed {
		return d.Scope, nil
	}
	metrics.AuthzDenials.WithLabelValues(string(res.Type), string(action)).Inc()
	if d.Reason == ReasonUnauthenticated {
		return ScopeNone, apperr.ErrUnauthenticated
	}
	return ScopeNone, apperr.Forbidden(d.Reason)
}

func allow(s Scope) Decision { return Decision{Allowed: true, Scope: s} }

func deny(reason string) Decision { return Decision{Reason: reason} }
