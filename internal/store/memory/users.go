package memory

import (
	"context"
	"errors"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

var errDuplicateKeyHash = errors.New("memory: duplicate api key hash")

func cloneUser(u model.User) model.User {
	u.EnrolledCourses = cloneStrings(u.EnrolledCourses)
	return u
}

func cloneKey(k model.APIKey) model.APIKey {
	k.Permissions = cloneStrings(k.Permissions)
	return k
}

// CreateUser inserts a user. A duplicate email yields ErrEmailTaken.
func (s *Store) CreateUser(_ context.Context, cred model.UserCredentials) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := cred.User
	if _, taken := s.emails[u.Email]; taken {
		return model.User{}, apperr.ErrEmailTaken
	}
	u.ID = s.newID(u.ID)
	u.EnrolledCourses = []string{}
	s.users[u.ID] = &userRow{user: u, hash: cred.PasswordHash}
	s.emails[u.Email] = u.ID
	return cloneUser(u), nil
}

// CredentialsByEmail loads a user with its password hash.
func (s *Store) CredentialsByEmail(_ context.Context, email string) (model.UserCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return model.UserCredentials{}, apperr.NotFound("user")
	}
	row := s.users[id]
	return model.UserCredentials{User: cloneUser(row.user), PasswordHash: row.hash}, nil
}

// UserByID returns a single user.
func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.NotFound("user")
	}
	return cloneUser(row.user), nil
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.users[id]; ok {
		row.user.LastLoginAt = timePtr(at)
	}
	return nil
}

// UpdateProfile applies non-nil profile fields.
func (s *Store) UpdateProfile(_ context.Context, id string, patch model.ProfilePatch, at time.Time) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.NotFound("user")
	}
	if patch.FirstName != nil {
		row.user.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		row.user.LastName = *patch.LastName
	}
	if patch.Phone != nil {
		row.user.Phone = *patch.Phone
	}
	row.user.UpdatedAt = at
	return cloneUser(row.user), nil
}

// CreateAPIKey stores a new key hash.
func (s *Store) CreateAPIKey(_ context.Context, key model.APIKey) (model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.keyHashes[key.KeyHash]; dup {
		return model.APIKey{}, errDuplicateKeyHash
	}
	key.ID = s.newID(key.ID)
	key.Permissions = cloneStrings(key.Permissions)
	s.keys[key.ID] = key
	s.keyHashes[key.KeyHash] = key.ID
	return cloneKey(key), nil
}

// APIKeyByHash looks a key up by the hash of its raw secret.
func (s *Store) APIKeyByHash(_ context.Context, hash string) (model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keyHashes[hash]
	if !ok {
		return model.APIKey{}, apperr.NotFound("api key")
	}
	return cloneKey(s.keys[id]), nil
}

// APIKeyByID returns a single key.
func (s *Store) APIKeyByID(_ context.Context, id string) (model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return model.APIKey{}, apperr.NotFound("api key")
	}
	return cloneKey(k), nil
}

// ListAPIKeys returns every key of owner, newest first.
func (s *Store) ListAPIKeys(_ context.Context, ownerID string) ([]model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.APIKey{}
	for _, k := range s.keys {
		if k.OwnerID == ownerID {
			out = append(out, cloneKey(k))
		}
	}
	newestFirst(s, out, func(k model.APIKey) time.Time { return k.CreatedAt }, func(k model.APIKey) string { return k.ID })
	return out, nil
}

// TouchAPIKey records key use.
func (s *Store) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		k.LastUsedAt = timePtr(at)
		s.keys[id] = k
	}
	return nil
}

// RevokeAPIKey deactivates a key.
func (s *Store) RevokeAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		k.IsActive = false
		s.keys[id] = k
	}
	return nil
}

// ListUsers returns accounts matching the filter, newest first.
func (s *Store) ListUsers(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.User{}
	for _, row := range s.users {
		u := row.user
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.IsActive != *f.Active {
			continue
		}
		out = append(out, cloneUser(u))
	}
	newestFirst(s, out, func(u model.User) time.Time { return u.CreatedAt }, func(u model.User) string { return u.ID })
	return model.Paginate(out, f.Page), len(out), nil
}

// SetUserRole updates a user's role.
func (s *Store) SetUserRole(_ context.Context, id string, role model.Role, at time.Time) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.NotFound("user")
	}
	row.user.Role = role
	row.user.UpdatedAt = at
	return cloneUser(row.user), nil
}

// SetUserActive flips the active flag.
func (s *Store) SetUserActive(_ context.Context, id string, active bool, at time.Time) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.NotFound("user")
	}
	row.user.IsActive = active
	row.user.UpdatedAt = at
	return cloneUser(row.user), nil
}

// UserIDsByRoles returns active users holding any of roles.
func (s *Store) UserIDsByRoles(_ context.Context, roles []model.Role) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, row := range s.users {
		if row.user.IsActive && model.ContainsRole(roles, row.user.Role) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AdminStats aggregates users, courses and enrollments.
func (s *Store) AdminStats(_ context.Context) (model.AdminStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.AdminStats
	st.Users.ByRole = map[model.Role]int{}
	for _, row := range s.users {
		st.Users.Total++
		st.Users.ByRole[row.user.Role]++
		if row.user.IsActive {
			st.Users.Active++
		}
	}
	for _, c := range s.courses {
		st.Courses.Total++
		if c.IsActive {
			st.Courses.Active++
		}
	}
	st.Enrollments.Total = len(s.enrollments)
	return st, nil
}
