// Package auth holds the password reset token store. Only the pieces the
// background cleanup job needs live here.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/linkpulse/linkpulse/errors"
)

// ResetToken is a stored password reset token. Only the hash of the
// secret is persisted.
type ResetToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TokenStore handles persistence of password reset tokens
type TokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenStore creates a new token store. now defaults to time.Now.
func NewTokenStore(db *sql.DB, now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{db: db, now: now}
}

// Create issues a reset token for userID valid for ttl. The returned secret
// is the only copy; it is not recoverable from the store.
func (s *TokenStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, *ResetToken, error) {
	if userID == "" {
		return "", nil, errors.NewInvalidRequestError("user ID is required")
	}
	if ttl <= 0 {
		return "", nil, errors.NewInvalidRequestError("token ttl must be positive, got %s", ttl)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, errors.Wrap(err, "failed to generate reset token")
	}
	secret := hex.EncodeToString(raw)

	now := s.now().UTC()
	token := &ResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.UserID, hashToken(secret), token.ExpiresAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create reset token")
	}
	return secret, token, nil
}

// Consume marks a valid, unused token as used and returns its user ID
func (s *TokenStore) Consume(ctx context.Context, secret string) (string, error) {
	now := s.now().UnixMilli()

	var userID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ?
		 WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
		 RETURNING user_id`,
		now, hashToken(secret), now,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFoundError("reset token is invalid, used or expired")
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to consume reset token")
	}
	return userID, nil
}

// Count returns the number of stored tokens
func (s *TokenStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM password_reset_tokens").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count reset tokens")
	}
	return n, nil
}

// CleanupExpiredResetTokens deletes tokens that have expired or were used,
// returning how many were removed. Safe to call repeatedly.
func (s *TokenStore) CleanupExpiredResetTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= ? OR used_at IS NOT NULL`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired reset tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read deleted token count")
	}
	return n, nil
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
