package store

import (
	"context"
	"time"
)

// RedeemOutcome is the result of an atomic single-use redemption.
type RedeemOutcome uint8

const (
	RedeemOK RedeemOutcome = iota + 1
	RedeemNotFound
	RedeemExpired
	RedeemAlreadyUsed
)

func (o RedeemOutcome) String() string {
	switch o {
	case RedeemOK:
		return "ok"
	case RedeemNotFound:
		return "not_found"
	case RedeemExpired:
		return "expired"
	case RedeemAlreadyUsed:
		return "already_used"
	default:
		return "unknown"
	}
}

// PasswordResetToken is a single-use, time-bounded reset credential.
type PasswordResetToken struct {
	ID        string
	AccountID string
	TokenHash TokenHash
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Valid reports whether the token can still be redeemed at now.
func (t PasswordResetToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, t PasswordResetToken) error
	// Redeem atomically checks and consumes the token with the given hash.
	// Of any number of concurrent calls at most one observes RedeemOK.
	Redeem(ctx context.Context, hash TokenHash, now time.Time) (PasswordResetToken, RedeemOutcome, error)
	// InvalidateAccount marks every unused token of accountID used at now.
	InvalidateAccount(ctx context.Context, accountID string, now time.Time) (int, error)
	// PurgeExpiredBefore deletes tokens with ExpiresAt before cutoff.
	PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
