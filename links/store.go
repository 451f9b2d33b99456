package links

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkpulse/linkpulse/errors"
)

// Store persists short URLs in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new short URL store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new active short URL
func (s *Store) Create(ctx context.Context, in NewShortURL, now time.Time) (*ShortURL, error) {
	if strings.TrimSpace(in.OriginalURL) == "" {
		return nil, errors.NewInvalidRequestError("original URL is required")
	}
	if in.UserID == "" {
		return nil, errors.NewInvalidRequestError("user ID is required")
	}

	code := in.ShortCode
	if code == "" {
		generated, err := NewShortCode()
		if err != nil {
			return nil, err
		}
		code = generated
	}

	u := &ShortURL{
		ID:          uuid.NewString(),
		ShortCode:   code,
		OriginalURL: in.OriginalURL,
		UserID:      in.UserID,
		Status:      StatusActive,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}

	var expiresAt sql.NullInt64
	if in.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toMillis(*in.ExpiresAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO short_urls (id, short_code, original_url, user_id, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ShortCode, u.OriginalURL, u.UserID, string(u.Status), expiresAt, toMillis(now), toMillis(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, errors.Wrapf(errors.ErrConflict, "short code %q already exists", code)
		}
		return nil, errors.Wrap(err, "failed to insert short URL")
	}
	return u, nil
}

// Get returns a short URL by ID
func (s *Store) Get(ctx context.Context, id string) (*ShortURL, error) {
	var (
		u                    ShortURL
		status               string
		expiresAt, expiredAt sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, short_code, original_url, user_id, status, expires_at, expired_at, created_at, updated_at
		FROM short_urls WHERE id = ?`, id).
		Scan(&u.ID, &u.ShortCode, &u.OriginalURL, &u.UserID, &status, &expiresAt, &expiredAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("short URL %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get short URL %s", id)
	}

	u.Status = Status(status)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		u.ExpiresAt = &t
	}
	if expiredAt.Valid {
		t := fromMillis(expiredAt.Int64)
		u.ExpiredAt = &t
	}
	return &u, nil
}

// SetStatus changes the status of a short URL, e.g. when its owner disables it
func (s *Store) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE short_urls SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set status of short URL %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NewNotFoundError("short URL %s", id)
	}
	return nil
}

// FetchExpiredCandidates returns up to limit URLs whose expiration time is at
// or before run.AsOf, oldest expiration first. Rows this run already expired
// stay in the result set so that offsets computed earlier in the run remain
// valid while the active set shrinks.
func (s *Store) FetchExpiredCandidates(ctx context.Context, run Run, limit, offset int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, short_code, user_id, expires_at
		FROM short_urls
		WHERE expires_at IS NOT NULL
		  AND expires_at <= ?
		  AND (status = 'active' OR (status = 'expired' AND expired_run_id = ?))
		ORDER BY expires_at ASC, id ASC
		LIMIT ? OFFSET ?`,
		toMillis(run.AsOf), run.ID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query expired candidates")
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			c         Candidate
			expiresAt int64
		)
		if err := rows.Scan(&c.ID, &c.ShortCode, &c.UserID, &expiresAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan expired candidate")
		}
		c.ExpiresAt = fromMillis(expiresAt)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate expired candidates")
	}
	return candidates, nil
}

// MarkExpired flips the given URLs to expired, but only those still active.
// It returns the IDs actually updated; rows changed concurrently by someone
// else are left alone and absent from the result.
func (s *Store) MarkExpired(ctx context.Context, run Run, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `
		UPDATE short_urls
		SET status = 'expired', expired_at = ?, expired_run_id = ?, updated_at = ?
		WHERE status = 'active' AND id IN (` + placeholders + `)
		RETURNING id`

	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, toMillis(at), run.ID, toMillis(at))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mark %d short URLs expired", len(ids))
	}
	defer rows.Close()

	var updated []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan expired id")
		}
		updated = append(updated, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate expired ids")
	}
	return updated, nil
}

// Statistics returns aggregate counts by status, plus how many active URLs
// are already past expiration and how many will expire in the next 24 hours.
func (s *Store) Statistics(ctx context.Context, now time.Time) (*Stats, error) {
	nowMS := toMillis(now)
	dayAhead := toMillis(now.Add(24 * time.Hour))

	stats := &Stats{GeneratedAt: now.UTC()}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'disabled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' AND expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' AND expires_at > ? AND expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM short_urls`,
		nowMS, nowMS, dayAhead).
		Scan(&stats.Total, &stats.Active, &stats.Expired, &stats.Disabled, &stats.PendingExpiration, &stats.ExpiringWithin24h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query short URL statistics")
	}
	return stats, nil
}
