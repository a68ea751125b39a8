package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store"
)

// Repository persists users and API keys in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UserColumns is the canonical select list for users; ScanUser reads it.
const UserColumns = `id, first_name, last_name, email, role, department, phone, is_active, enrolled_courses, last_login_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// ScanUser reads a row selected with UserColumns.
func ScanUser(row scanner, extra ...any) (model.User, error) {
	var u model.User
	var role string
	var lastLogin sql.NullTime
	dest := []any{&u.ID, &u.FirstName, &u.LastName, &u.Email, &role, &u.Department, &u.Phone, &u.IsActive, store.Array(&u.EnrolledCourses), &lastLogin, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if u.EnrolledCourses == nil {
		u.EnrolledCourses = []string{}
	}
	return u, nil
}

// CreateUser inserts a user. A duplicate email yields ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, cred model.UserCredentials) (model.User, error) {
	u := cred.User
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, role, department, phone, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		RETURNING `+UserColumns,
		u.ID, u.FirstName, u.LastName, u.Email, cred.PasswordHash, string(u.Role), u.Department, u.Phone, u.IsActive, u.CreatedAt)
	created, err := ScanUser(row)
	if err != nil {
		return model.User{}, store.MapUnique(err, map[string]error{"users_email_key": apperr.ErrEmailTaken})
	}
	return created, nil
}

// CredentialsByEmail loads a user with its password hash.
func (r *Repository) CredentialsByEmail(ctx context.Context, email string) (model.UserCredentials, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+UserColumns+`, password_hash FROM users WHERE email = $1`, email)
	var hash string
	u, err := ScanUser(row, &hash)
	if err != nil {
		return model.UserCredentials{}, store.NotFound(err, "user")
	}
	return model.UserCredentials{User: u, PasswordHash: hash}, nil
}

// UserByID returns a single user.
func (r *Repository) UserByID(ctx context.Context, id string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, apperr.NotFound("user")
	}
	u, err := ScanUser(r.db.QueryRowContext(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, store.NotFound(err, "user")
	}
	return u, nil
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

// UpdateProfile applies non-nil profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch, at time.Time) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			phone = COALESCE($4, phone),
			updated_at = $5
		WHERE id = $1
		RETURNING `+UserColumns,
		id, patch.FirstName, patch.LastName, patch.Phone, at)
	u, err := ScanUser(row)
	if err != nil {
		return model.User{}, store.NotFound(err, "user")
	}
	return u, nil
}

const apiKeyColumns = `id, owner_id, name, description, key_hash, permissions, is_active, expires_at, last_used_at, created_at`

func scanAPIKey(row scanner) (model.APIKey, error) {
	var k model.APIKey
	var lastUsed sql.NullTime
	if err := row.Scan(&k.ID, &k.OwnerID, &k.Name, &k.Description, &k.KeyHash, store.Array(&k.Permissions), &k.IsActive, &k.ExpiresAt, &lastUsed, &k.CreatedAt); err != nil {
		return model.APIKey{}, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return k, nil
}

// CreateAPIKey stores a new key hash.
func (r *Repository) CreateAPIKey(ctx context.Context, key model.APIKey) (model.APIKey, error) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (id, owner_id, name, description, key_hash, permissions, is_active, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+apiKeyColumns,
		key.ID, key.OwnerID, key.Name, key.Description, key.KeyHash, key.Permissions, key.IsActive, key.ExpiresAt, key.CreatedAt)
	return scanAPIKey(row)
}

// APIKeyByHash looks a key up by the hash of its raw secret.
func (r *Repository) APIKeyByHash(ctx context.Context, hash string) (model.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if err != nil {
		return model.APIKey{}, store.NotFound(err, "api key")
	}
	return k, nil
}

// APIKeyByID returns a single key.
func (r *Repository) APIKeyByID(ctx context.Context, id string) (model.APIKey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.APIKey{}, apperr.NotFound("api key")
	}
	k, err := scanAPIKey(r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if err != nil {
		return model.APIKey{}, store.NotFound(err, "api key")
	}
	return k, nil
}

// ListAPIKeys returns every key of owner, newest first.
func (r *Repository) ListAPIKeys(ctx context.Context, ownerID string) ([]model.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []model.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchAPIKey records key use.
func (r *Repository) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// RevokeAPIKey deactivates a key. Keys are never deleted.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	return err
}
