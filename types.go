package accountsec

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/accountsec/internal/audit"
	"github.com/MrEthical07/accountsec/store"
)

// AccountStatus is the lifecycle state of an account as owned by the
// identity provider.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota + 1
	AccountSuspended
	AccountLocked
	AccountDisabled
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountSuspended:
		return "suspended"
	case AccountLocked:
		return "locked"
	case AccountDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// AccountRecord is what the engine needs to know about an account.
type AccountRecord struct {
	AccountID  string
	Identifier string
	Status     AccountStatus
}

// IdentityProvider resolves login identifiers and owns account status.
//
// ResolveAccount returns found=false for unknown identifiers; err is reserved
// for provider failures. RequestStatusChange is a request: the provider may
// refuse it.
type IdentityProvider interface {
	ResolveAccount(ctx context.Context, identifier string) (record AccountRecord, found bool, err error)
	RequestStatusChange(ctx context.Context, accountID string, status AccountStatus) error
}

// Record aliases keep callers on one import.
type (
	LoginAttempt         = store.LoginAttempt
	Lockout              = store.Lockout
	Session              = store.Session
	PasswordHistoryEntry = store.PasswordHistoryEntry
	PasswordResetToken   = store.PasswordResetToken
	Invitation           = store.Invitation
)

// Stores bundles the storage collaborators. Nil fields are filled by the
// Builder from the configured backends.
type Stores struct {
	Attempts    store.AttemptStore
	Lockouts    store.LockoutStore
	Sessions    store.SessionStore
	ResetTokens store.ResetTokenStore
	Invitations store.InvitationStore
	Credentials store.CredentialStore
}

// LoginRequest is the input of [Engine.Login]. Empty SourceAddress and
// UserAgent fall back to values attached with [WithSourceAddress] and
// [WithUserAgent].
type LoginRequest struct {
	Identifier    string
	Password      string
	SourceAddress string
	UserAgent     string
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	AccountID string
	Session   IssuedSession
	// Rehashed reports that the stored hash was upgraded during login.
	Rehashed bool
}

// IssuedSession carries the plaintext session token. It is returned exactly
// once and never stored.
type IssuedSession struct {
	Token   string
	Session Session
}

// IssuedResetToken carries a plaintext password reset token.
type IssuedResetToken struct {
	Token  string
	Record PasswordResetToken
}

// IssuedInvitation carries a plaintext invitation token.
type IssuedInvitation struct {
	Token      string
	Invitation Invitation
}

// DecisionKind is the lockout action taken after a failure.
type DecisionKind uint8

const (
	DecisionNone DecisionKind = iota
	DecisionTemporary
	DecisionPermanent
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionTemporary:
		return "temporary"
	case DecisionPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// LockoutDecision is the outcome of [Engine.EvaluateAfterFailure].
type LockoutDecision struct {
	Kind DecisionKind
	// Duration is the temporary lockout length; zero for none and permanent.
	Duration time.Duration
	// FailureCount is the number of failures observed in the window.
	FailureCount int
	// Lockout is the lockout in force after the decision, if any.
	Lockout *Lockout
	// Created is false when an existing active lockout was extended.
	Created bool
}

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	AttemptsPurged     int64
	LockoutsPurged     int64
	SessionsPurged     int64
	ResetTokensPurged  int64
	InvitationsExpired int
	Duration           time.Duration
}

// AuditEvent is the audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
)

// NewChannelSink returns a sink that delivers events on a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
