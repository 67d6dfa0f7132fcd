package store

import (
	"context"
	"time"
)

// LockoutReason records why a lockout was imposed.
type LockoutReason uint8

const (
	ReasonFailedAttempts LockoutReason = iota + 1
	ReasonAdministrative
)

func (r LockoutReason) String() string {
	switch r {
	case ReasonFailedAttempts:
		return "failed_attempts"
	case ReasonAdministrative:
		return "administrative"
	default:
		return "unknown"
	}
}

// ParseLockoutReason is the inverse of [LockoutReason.String].
func ParseLockoutReason(s string) (LockoutReason, bool) {
	switch s {
	case "failed_attempts":
		return ReasonFailedAttempts, true
	case "administrative":
		return ReasonAdministrative, true
	}
	return 0, false
}

// LockoutKind distinguishes time-bounded from indefinite lockouts.
type LockoutKind uint8

const (
	LockoutTemporary LockoutKind = iota + 1
	LockoutPermanent
)

func (k LockoutKind) String() string {
	if k == LockoutPermanent {
		return "permanent"
	}
	return "temporary"
}

// Lockout is a period during which an account may not authenticate.
//
// A nil End means the lockout is permanent and only an explicit unlock
// (UnlockedAt set) ends it.
type Lockout struct {
	ID                 string
	AccountID          string
	Start              time.Time
	End                *time.Time
	FailedAttemptCount int
	Reason             LockoutReason
	UnlockedAt         *time.Time
}

// Kind reports whether the lockout is temporary or permanent.
func (l Lockout) Kind() LockoutKind {
	if l.End == nil {
		return LockoutPermanent
	}
	return LockoutTemporary
}

// Active reports whether the lockout still blocks authentication at now.
func (l Lockout) Active(now time.Time) bool {
	if l.UnlockedAt != nil {
		return false
	}
	return l.End == nil || now.Before(*l.End)
}

// EndedBefore reports whether the lockout stopped blocking strictly before
// cutoff. Permanent lockouts that were never unlocked never end.
func (l Lockout) EndedBefore(cutoff time.Time) bool {
	if l.UnlockedAt != nil {
		return l.UnlockedAt.Before(cutoff)
	}
	return l.End != nil && l.End.Before(cutoff)
}

// LockoutProposal is what the policy wants to be in force after a failure.
// A nil End proposes a permanent lockout.
type LockoutProposal struct {
	End                *time.Time
	FailedAttemptCount int
	Reason             LockoutReason
}

// LockoutStore persists lockouts. At most one lockout per account may be
// active at any instant.
type LockoutStore interface {
	// CreateOrExtend atomically merges proposal into the active lockout of
	// accountID at now, or creates a new lockout when none is active.
	// created reports which branch ran. The merged record is returned.
	CreateOrExtend(ctx context.Context, accountID string, now time.Time, proposal LockoutProposal) (lockout Lockout, created bool, err error)
	// Active returns the lockout of accountID that is active at now.
	Active(ctx context.Context, accountID string, now time.Time) (Lockout, bool, error)
	// EndActive ends the active lockout of accountID. With includePermanent
	// any active lockout gets UnlockedAt=now; without it a temporary lockout
	// gets End=now and a permanent one is left untouched. ended is false when
	// nothing changed; the returned record is the lockout examined, if any.
	EndActive(ctx context.Context, accountID string, now time.Time, includePermanent bool) (lockout Lockout, ended bool, err error)
	// PurgeEndedBefore deletes lockouts that stopped blocking before cutoff.
	PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
