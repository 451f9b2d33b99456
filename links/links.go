// Package links stores short URLs and answers the queries the expiration
// engine and the admin surface need.
package links

import (
	"crypto/rand"
	"time"

	"github.com/mr-tron/base58"

	"github.com/linkpulse/linkpulse/errors"
)

// Status is the lifecycle state of a short URL
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusDisabled Status = "disabled"
)

// ShortURL is a stored short link
type ShortURL struct {
	ID          string
	ShortCode   string
	OriginalURL string
	UserID      string
	Status      Status
	ExpiresAt   *time.Time
	ExpiredAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewShortURL holds the fields a caller supplies on creation.
// An empty ShortCode is generated.
type NewShortURL struct {
	ShortCode   string
	OriginalURL string
	UserID      string
	ExpiresAt   *time.Time
}

// Candidate is a short URL whose expiration time has passed
type Candidate struct {
	ID        string
	ShortCode string
	UserID    string
	ExpiresAt time.Time
}

// Run identifies one expiration scan. AsOf is fixed for the whole scan so
// paging sees a stable candidate ordering.
type Run struct {
	ID   string
	AsOf time.Time
}

// Stats are aggregate counts by category
type Stats struct {
	Total             int64     `json:"total"`
	Active            int64     `json:"active"`
	Expired           int64     `json:"expired"`
	Disabled          int64     `json:"disabled"`
	PendingExpiration int64     `json:"pendingExpiration"`
	ExpiringWithin24h int64     `json:"expiringWithin24h"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

const shortCodeBytes = 6

// NewShortCode returns a random base58 code (8 or 9 characters)
func NewShortCode() (string, error) {
	buf := make([]byte, shortCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes for short code")
	}
	return base58.Encode(buf), nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
