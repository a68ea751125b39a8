package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Store persists users and API keys.
type Store interface {
	CreateUser(ctx context.Context, cred model.UserCredentials) (model.User, error)
	CredentialsByEmail(ctx context.Context, email string) (model.UserCredentials, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch, at time.Time) (model.User, error)

	CreateAPIKey(ctx context.Context, key model.APIKey) (model.APIKey, error)
	APIKeyByHash(ctx context.Context, hash string) (model.APIKey, error)
	APIKeyByID(ctx context.Context, id string) (model.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID string) ([]model.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	RevokeAPIKey(ctx context.Context, id string) error
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Role       model.Role
	Department string
	Phone      string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token
	User model.User `json:"user"`
}

// IssueKeyInput describes a new API key.
type IssueKeyInput struct {
	Name        string
	Description string
	Permissions []string
}

// Service owns identities and credentials.
type Service struct {
	store     Store
	hasher    Hasher
	signer    Signer
	keyTTL    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	minPwdLen int
}

// NewService wires the identity service.
func NewService(store Store, hasher Hasher, signer Signer, keyTTL time.Duration, now func() time.Time, logger *slog.Logger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if keyTTL <= 0 {
		keyTTL = 365 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hasher: hasher, signer: signer, keyTTL: keyTTL, now: now, logger: logger, minPwdLen: 6}
}

// Register creates a user. Only an admin may create another admin.
func (s *Service) Register(ctx context.Context, actor *model.Principal, in RegisterInput) (model.User, error) {
	logger := logging.Service(ctx, s.logger, "auth", "register")

	email := model.NormalizeEmail(in.Email)
	fields := map[string]string{}
	if email == "" || !strings.Contains(email, "@") {
		fields["email"] = "must be a valid email"
	}
	if len(in.Password) < s.minPwdLen {
		fields["password"] = "must be at least 6 characters"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["firstName"] = "required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["lastName"] = "required"
	}
	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	if !role.Valid() {
		fields["role"] = "must be one of student faculty admin"
	}
	if len(fields) > 0 {
		return model.User{}, apperr.Validation(fields)
	}
	if role == model.RoleAdmin && !actor.IsAdmin() {
		return model.User{}, apperr.Forbidden("only admins may create admin accounts")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	now := s.now().UTC()
	user, err := s.store.CreateUser(ctx, model.UserCredentials{
		User: model.User{
			FirstName:  strings.TrimSpace(in.FirstName),
			LastName:   strings.TrimSpace(in.LastName),
			Email:      email,
			Role:       role,
			Department: strings.TrimSpace(in.Department),
			Phone:      strings.TrimSpace(in.Phone),
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrEmailTaken) {
			logger.Error("create user failed", "error", err)
		}
		return model.User{}, err
	}
	logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	logger := logging.Service(ctx, s.logger, "auth", "login")

	cred, err := s.store.CredentialsByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return LoginResult{}, apperr.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !s.hasher.Verify(cred.PasswordHash, password) {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}
	if !cred.User.IsActive {
		return LoginResult{}, apperr.ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.store.TouchLogin(ctx, cred.User.ID, now); err != nil {
		logger.Warn("record last login failed", "user_id", cred.User.ID, "error", err)
	} else {
		cred.User.LastLoginAt = &now
	}
	tok, err := s.signer.Issue(cred.User.ID, string(cred.User.Role), now)
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	return LoginResult{Token: tok, User: cred.User}, nil
}

// AuthenticateToken resolves a bearer token to a principal, reloading the user.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (model.Principal, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return model.Principal{}, apperr.ErrUnauthenticated
	}
	user, err := s.store.UserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Principal{}, apperr.ErrUnauthenticated
		}
		return model.Principal{}, err
	}
	if !user.IsActive {
		return model.Principal{}, apperr.ErrAccountInactive
	}
	return model.PrincipalFor(user, model.AuthJWT), nil
}

// AuthenticateAPIKey resolves a raw key to its owner and the key record.
func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (model.Principal, model.APIKey, error) {
	logger := logging.Service(ctx, s.logger, "auth", "authenticate_api_key")

	key, err := s.store.APIKeyByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Principal{}, model.APIKey{}, apperr.ErrInvalidKey
		}
		return model.Principal{}, model.APIKey{}, err
	}
	now := s.now().UTC()
	if !key.Usable(now) {
		return model.Principal{}, model.APIKey{}, apperr.ErrInvalidKey
	}
	owner, err := s.store.UserByID(ctx, key.OwnerID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Principal{}, model.APIKey{}, apperr.ErrInvalidKey
		}
		return model.Principal{}, model.APIKey{}, err
	}
	if !owner.IsActive {
		return model.Principal{}, model.APIKey{}, apperr.ErrAccountInactive
	}
	if err := s.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		logger.Warn("record key use failed", "key_id", key.ID, "error", err)
	} else {
		key.LastUsedAt = &now
	}

	p := model.PrincipalFor(owner, model.AuthAPIKey)
	p.KeyPermissions = append([]string(nil), key.Permissions...)
	return p, key, nil
}

// IssueAPIKey creates a key for owner. The raw secret is returned only here.
func (s *Service) IssueAPIKey(ctx context.Context, owner *model.Principal, in IssueKeyInput) (model.APIKey, string, error) {
	if _, err := authz.Check(owner, authz.ActCreate, authz.On(authz.APIKey)); err != nil {
		return model.APIKey{}, "", err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.APIKey{}, "", apperr.Invalid("name", "required")
	}
	perms := dedupe(in.Permissions)
	if len(perms) == 0 {
		perms = []string{model.PermRead}
	}
	for _, p := range perms {
		if !model.ValidPermission(p) {
			return model.APIKey{}, "", apperr.Invalid("permissions", "unknown permission "+p)
		}
		if p == model.PermAdmin && !owner.IsAdmin() {
			return model.APIKey{}, "", apperr.Forbidden("only admins may issue admin keys")
		}
	}

	raw, hash, err := GenerateKey()
	if err != nil {
		return model.APIKey{}, "", apperr.Internal(err)
	}
	now := s.now().UTC()
	key, err := s.store.CreateAPIKey(ctx, model.APIKey{
		OwnerID:     owner.UserID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		KeyHash:     hash,
		Permissions: perms,
		IsActive:    true,
		ExpiresAt:   now.Add(s.keyTTL),
		CreatedAt:   now,
	})
	if err != nil {
		return model.APIKey{}, "", err
	}
	logging.Service(ctx, s.logger, "auth", "issue_api_key").Info("api key issued", "key_id", key.ID, "owner_id", owner.UserID)
	return key, raw, nil
}

// ListAPIKeys returns the caller's keys.
func (s *Service) ListAPIKeys(ctx context.Context, owner *model.Principal) ([]model.APIKey, error) {
	if _, err := authz.Check(owner, authz.ActList, authz.On(authz.APIKey)); err != nil {
		return nil, err
	}
	return s.store.ListAPIKeys(ctx, owner.UserID)
}

// RevokeAPIKey soft-revokes a key. Revoking an already revoked key succeeds.
func (s *Service) RevokeAPIKey(ctx context.Context, actor *model.Principal, keyID string) error {
	key, err := s.store.APIKeyByID(ctx, keyID)
	if err != nil {
		return err
	}
	if actor != nil && key.OwnerID != actor.UserID && !actor.IsAdmin() {
		return apperr.NotFound("api key")
	}
	if _, err := authz.Check(actor, authz.ActDelete, authz.Owned(authz.APIKey, key.OwnerID)); err != nil {
		return err
	}
	if !key.IsActive {
		return nil
	}
	return s.store.RevokeAPIKey(ctx, key.ID)
}

// Me returns the caller's user record.
func (s *Service) Me(ctx context.Context, p *model.Principal) (model.User, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.Owned(authz.Profile, p.UserID)); err != nil {
		return model.User{}, err
	}
	return s.store.UserByID(ctx, p.UserID)
}

// UpdateProfile applies self-service profile edits.
func (s *Service) UpdateProfile(ctx context.Context, p *model.Principal, patch model.ProfilePatch) (model.User, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.Owned(authz.Profile, p.UserID)); err != nil {
		return model.User{}, err
	}
	trim(patch.FirstName)
	trim(patch.LastName)
	trim(patch.Phone)
	if (patch.FirstName != nil && *patch.FirstName == "") || (patch.LastName != nil && *patch.LastName == "") {
		return model.User{}, apperr.Invalid("name", "must not be empty")
	}
	return s.store.UpdateProfile(ctx, p.UserID, patch, s.now().UTC())
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
