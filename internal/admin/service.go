// Package admin implements user management and the dashboard statistics.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Store reads and updates accounts.
type Store interface {
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	SetUserRole(ctx context.Context, id string, role model.Role, at time.Time) (model.User, error)
	SetUserActive(ctx context.Context, id string, active bool, at time.Time) (model.User, error)
	AdminStats(ctx context.Context) (model.AdminStats, error)
}

// Service is the admin surface. Every operation requires the admin role.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an admin service.
func NewService(store Store, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, logger: logger}
}

// ListUsers returns accounts, newest first.
func (s *Service) ListUsers(ctx context.Context, p *model.Principal, f model.UserFilter) ([]model.User, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.User)); err != nil {
		return nil, model.Pagination{}, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, model.Pagination{}, apperr.Invalid("role", "must be one of student faculty admin")
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.store.ListUsers(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, p *model.Principal, id string) (model.User, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.User)); err != nil {
		return model.User{}, err
	}
	return s.store.UserByID(ctx, id)
}

// ChangeRole assigns a new role. Admins cannot demote themselves.
func (s *Service) ChangeRole(ctx context.Context, p *model.Principal, id string, role model.Role) (model.User, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.User)); err != nil {
		return model.User{}, err
	}
	if !role.Valid() {
		return model.User{}, apperr.Invalid("role", "must be one of student faculty admin")
	}
	if id == p.UserID && role != model.RoleAdmin {
		return model.User{}, apperr.Invalid("role", "admins cannot change their own role")
	}
	u, err := s.store.SetUserRole(ctx, id, role, s.now().UTC())
	if err != nil {
		return model.User{}, err
	}
	logging.Service(ctx, s.logger, "admin", "change_role").Info("user role changed", "user_id", id, "role", role, "by", p.UserID)
	return u, nil
}

// Activate re-enables an account.
func (s *Service) Activate(ctx context.Context, p *model.Principal, id string) (model.User, error) {
	return s.setActive(ctx, p, id, true)
}

// Deactivate disables an account. Its tokens and keys stop authenticating.
func (s *Service) Deactivate(ctx context.Context, p *model.Principal, id string) (model.User, error) {
	return s.setActive(ctx, p, id, false)
}

func (s *Service) setActive(ctx context.Context, p *model.Principal, id string, active bool) (model.User, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.User)); err != nil {
		return model.User{}, err
	}
	if !active && id == p.UserID {
		return model.User{}, apperr.Invalid("id", "admins cannot deactivate themselves")
	}
	u, err := s.store.SetUserActive(ctx, id, active, s.now().UTC())
	if err != nil {
		return model.User{}, err
	}
	logging.Service(ctx, s.logger, "admin", "set_active").Info("user activation changed", "user_id", id, "active", active, "by", p.UserID)
	return u, nil
}

// Stats returns the dashboard counters.
func (s *Service) Stats(ctx context.Context, p *model.Principal) (model.AdminStats, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.Stats)); err != nil {
		return model.AdminStats{}, err
	}
	return s.store.AdminStats(ctx)
}
