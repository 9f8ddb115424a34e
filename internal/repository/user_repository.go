package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// UserRepository handles persistence of users, refresh tokens and audit logs.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at
        FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by its ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at
        FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token record.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent)
        VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
        FROM refresh_tokens WHERE token = $1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a single refresh token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all active refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog appends an audit trail record.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
