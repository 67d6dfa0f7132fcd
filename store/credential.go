package store

import (
	"context"
	"time"
)

// PasswordHistoryEntry is one password hash an account has held.
type PasswordHistoryEntry struct {
	AccountID    string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialStore holds the current password hash of each account together
// with its history.
type CredentialStore interface {
	// CurrentHash returns the live hash of accountID.
	CurrentHash(ctx context.Context, accountID string) (hash string, found bool, err error)
	// SetPassword replaces the live hash and appends a history entry in one
	// atomic step. Concurrent calls for one account are serialized.
	SetPassword(ctx context.Context, accountID, hash string, at time.Time) error
	// History returns at most limit entries, newest first. limit <= 0 returns
	// every entry.
	History(ctx context.Context, accountID string, limit int) ([]PasswordHistoryEntry, error)
	// PruneHistory keeps the newest keep entries plus any entry whose hash is
	// the live hash, and returns how many were deleted.
	PruneHistory(ctx context.Context, accountID string, keep int) (int, error)
}
