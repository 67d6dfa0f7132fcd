package policy

import (
	"time"

	"github.com/MrEthical07/accountsec/store"
)

// Kind is the lockout the policy asks for.
type Kind uint8

const (
	None Kind = iota
	Temporary
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Temporary:
		return "temporary"
	case Permanent:
		return "permanent"
	default:
		return "none"
	}
}

// LockoutConfig carries the thresholds of the failed-attempt policy.
type LockoutConfig struct {
	Window             time.Duration
	TemporaryThreshold int
	TemporaryDuration  time.Duration
	// PermanentThreshold <= 0 disables escalation to permanent lockouts.
	PermanentThreshold int
}

// Decide applies the threshold rule to count failures observed in the window.
func Decide(cfg LockoutConfig, count int) Kind {
	if cfg.PermanentThreshold > 0 && count >= cfg.PermanentThreshold {
		return Permanent
	}
	if cfg.TemporaryThreshold > 0 && count >= cfg.TemporaryThreshold {
		return Temporary
	}
	return None
}

// Proposal builds the store proposal for kind at now. It returns false for None.
func Proposal(cfg LockoutConfig, kind Kind, count int, now time.Time) (store.LockoutProposal, bool) {
	switch kind {
	case Temporary:
		end := now.Add(cfg.TemporaryDuration)
		return store.LockoutProposal{End: &end, FailedAttemptCount: count, Reason: store.ReasonFailedAttempts}, true
	case Permanent:
		return store.LockoutProposal{FailedAttemptCount: count, Reason: store.ReasonFailedAttempts}, true
	}
	return store.LockoutProposal{}, false
}

// NewLockout materializes proposal as a new lockout starting at now.
func NewLockout(id, accountID string, now time.Time, p store.LockoutProposal) store.Lockout {
	l := store.Lockout{
		ID:                 id,
		AccountID:          accountID,
		Start:              now,
		FailedAttemptCount: p.FailedAttemptCount,
		Reason:             p.Reason,
	}
	if p.End != nil {
		end := *p.End
		l.End = &end
	}
	return l
}

// Merge folds p into the active lockout cur and returns the result. The
// identity, start and reason of cur are preserved.
func Merge(cur store.Lockout, p store.LockoutProposal) store.Lockout {
	out := cur
	switch {
	case cur.End == nil:
	case p.End == nil:
		out.End = nil
	case p.End.After(*cur.End):
		end := *p.End
		out.End = &end
	}
	if p.FailedAttemptCount > out.FailedAttemptCount {
		out.FailedAttemptCount = p.FailedAttemptCount
	}
	return out
}
