package store

import (
	"context"
	"time"
)

// TokenHash is the SHA-256 digest of an opaque bearer token. Plaintext tokens
// are never persisted.
type TokenHash [32]byte

// Session is an authenticated context bound to one account.
type Session struct {
	ID            string
	AccountID     string
	TokenHash     TokenHash
	SourceAddress string
	UserAgent     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Active reports whether the session is usable at now.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionStore persists sessions keyed by ID with a unique token-hash index.
type SessionStore interface {
	// Create inserts s. It returns ErrDuplicate when the token hash or ID is
	// already present; existing sessions are never overwritten.
	Create(ctx context.Context, s Session) error
	GetByTokenHash(ctx context.Context, hash TokenHash) (Session, bool, error)
	Get(ctx context.Context, id string) (Session, bool, error)
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every session of accountID except those whose
	// ID is listed in keep, and returns how many were removed.
	DeleteByAccount(ctx context.Context, accountID string, keep ...string) (int, error)
	// UpdateExpiry sets ExpiresAt of an existing session. found is false when
	// the session does not exist.
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) (found bool, err error)
	ListByAccount(ctx context.Context, accountID string) ([]Session, error)
	// PurgeExpired deletes sessions whose ExpiresAt is not after now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
