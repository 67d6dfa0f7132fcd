package store

import (
	"context"
	"time"
)

// AttemptOutcome is the result of a single login attempt.
type AttemptOutcome uint8

const (
	OutcomeSuccess AttemptOutcome = iota + 1
	OutcomeFailure
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// FailureReason qualifies an [OutcomeFailure] attempt.
type FailureReason uint8

const (
	FailureNone FailureReason = iota
	FailureBadPassword
	FailureUnknownAccount
	FailureLocked
	FailureAccountInactive
)

func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return "none"
	case FailureBadPassword:
		return "bad_password"
	case FailureUnknownAccount:
		return "unknown_account"
	case FailureLocked:
		return "locked"
	case FailureAccountInactive:
		return "account_inactive"
	default:
		return "unknown"
	}
}

// ParseFailureReason is the inverse of [FailureReason.String].
func ParseFailureReason(s string) (FailureReason, bool) {
	for r := FailureNone; r <= FailureAccountInactive; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return FailureNone, false
}

// LoginAttempt is an immutable, append-only record of one authentication
// attempt. AccountID is empty when the identifier did not resolve to an
// account; such attempts are still tracked by SourceAddress.
type LoginAttempt struct {
	ID            string
	AccountID     string
	Identifier    string
	SourceAddress string
	UserAgent     string
	OccurredAt    time.Time
	Outcome       AttemptOutcome
	FailureReason FailureReason
}

// Failed reports whether the attempt counts toward failure windows.
func (a LoginAttempt) Failed() bool {
	return a.Outcome == OutcomeFailure
}

// AttemptStore is the append-only attempt log. It carries no policy.
type AttemptStore interface {
	Append(ctx context.Context, attempt LoginAttempt) error
	// CountAccountFailures counts failures for accountID with OccurredAt >= since.
	CountAccountFailures(ctx context.Context, accountID string, since time.Time) (int, error)
	// CountAddressFailures counts failures from addr with OccurredAt >= since.
	CountAddressFailures(ctx context.Context, addr string, since time.Time) (int, error)
	// RecentAccountFailures returns failures with OccurredAt >= since, newest first.
	RecentAccountFailures(ctx context.Context, accountID string, since time.Time) ([]LoginAttempt, error)
	// PurgeBefore deletes attempts with OccurredAt < cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
