package store

import (
	"context"
	"time"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus uint8

const (
	InvitationPending InvitationStatus = iota + 1
	InvitationSent
	InvitationAccepted
	InvitationExpired
)

func (s InvitationStatus) String() string {
	switch s {
	case InvitationPending:
		return "pending"
	case InvitationSent:
		return "sent"
	case InvitationAccepted:
		return "accepted"
	case InvitationExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseInvitationStatus is the inverse of [InvitationStatus.String].
func ParseInvitationStatus(s string) (InvitationStatus, bool) {
	for st := InvitationPending; st <= InvitationExpired; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Terminal reports whether no further transition is possible.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationExpired
}

// CanTransitionTo reports whether s -> next is a permitted transition.
// Permitted: pending->sent, pending|sent->accepted, pending|sent->expired.
func (s InvitationStatus) CanTransitionTo(next InvitationStatus) bool {
	switch next {
	case InvitationSent:
		return s == InvitationPending
	case InvitationAccepted, InvitationExpired:
		return s == InvitationPending || s == InvitationSent
	}
	return false
}

// Invitation is a time-bounded, single-use onboarding token.
type Invitation struct {
	ID          string
	AccountID   string
	TokenHash   TokenHash
	Status      InvitationStatus
	CreatedAt   time.Time
	SentAt      *time.Time
	ExpiresAt   time.Time
	ResendCount int
	AcceptedAt  *time.Time
}

// InvitationStore persists invitations.
type InvitationStore interface {
	Create(ctx context.Context, inv Invitation) error
	Get(ctx context.Context, id string) (Invitation, bool, error)
	// Transition moves invitation id to next at now, setting SentAt or
	// AcceptedAt as appropriate. It returns ErrNotFound for unknown IDs and
	// ErrInvalidTransition when the current status does not permit next.
	Transition(ctx context.Context, id string, next InvitationStatus, now time.Time) (Invitation, error)
	// Resend increments ResendCount and sets SentAt=now without changing
	// status. Terminal invitations yield ErrInvalidTransition.
	Resend(ctx context.Context, id string, now time.Time) (Invitation, error)
	// Accept atomically redeems the invitation with the given hash. Terminal
	// or expired invitations are not redeemable.
	Accept(ctx context.Context, hash TokenHash, now time.Time) (Invitation, RedeemOutcome, error)
	// FindExpired returns non-terminal invitations with ExpiresAt <= now,
	// the same instant from which Accept reports RedeemExpired.
	FindExpired(ctx context.Context, now time.Time) ([]Invitation, error)
}
