package accountsec

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec/internal/policy"
	"github.com/MrEthical07/accountsec/store"
)

// EvaluateAfterFailure applies the lockout policy to accountID after a failed
// attempt has been recorded.
//
// The failure count covers [now-Window, now]. At or above PermanentThreshold a
// permanent lockout is requested; at or above TemporaryThreshold a temporary
// one ending at now+TemporaryDuration. The request is merged into any active
// lockout in one atomic store call, so concurrent evaluations never produce
// two active lockouts.
func (e *Engine) EvaluateAfterFailure(ctx context.Context, accountID string) (LockoutDecision, error) {
	if err := e.ready(ctx); err != nil {
		return LockoutDecision{}, err
	}
	now := e.clock()
	cfg := e.config.Lockout.policy()

	active, locked, err := e.stores.Lockouts.Active(ctx, accountID, now)
	if err != nil {
		return LockoutDecision{}, storageErr(err)
	}
	if locked && active.Kind() == store.LockoutPermanent {
		return LockoutDecision{Kind: DecisionNone, Lockout: &active}, nil
	}

	count, err := e.stores.Attempts.CountAccountFailures(ctx, accountID, now.Add(-cfg.Window))
	if err != nil {
		return LockoutDecision{}, storageErr(err)
	}

	kind := policy.Decide(cfg, count)
	proposal, ok := policy.Proposal(cfg, kind, count, now)
	if !ok {
		d := LockoutDecision{Kind: DecisionNone, FailureCount: count}
		if locked {
			d.Lockout = &active
		}
		return d, nil
	}

	lockout, created, err := e.stores.Lockouts.CreateOrExtend(ctx, accountID, now, proposal)
	if err != nil {
		return LockoutDecision{}, storageErr(err)
	}

	d := LockoutDecision{FailureCount: count, Lockout: &lockout, Created: created}
	meta := map[string]string{"kind": kind.String()}
	switch kind {
	case policy.Permanent:
		d.Kind = DecisionPermanent
		e.metricInc(MetricLockoutPermanent)
	default:
		d.Kind = DecisionTemporary
		d.Duration = cfg.TemporaryDuration
		e.metricInc(MetricLockoutTemporary)
	}
	if created {
		e.emitAudit(ctx, auditEventLockoutCreated, accountID, "", true, nil, meta)
	} else {
		e.metricInc(MetricLockoutExtended)
		e.emitAudit(ctx, auditEventLockoutExtended, accountID, "", true, nil, meta)
	}

	// an already-permanent lockout returned early above
	if d.Kind == DecisionPermanent {
		e.requestStatus(ctx, accountID, AccountLocked)
	}
	return d, nil
}

// IsLocked reports whether accountID has a lockout active now.
func (e *Engine) IsLocked(ctx context.Context, accountID string) (bool, error) {
	_, locked, err := e.ActiveLockout(ctx, accountID)
	return locked, err
}

// ActiveLockout returns the lockout of accountID that is active now.
func (e *Engine) ActiveLockout(ctx context.Context, accountID string) (Lockout, bool, error) {
	if err := e.ready(ctx); err != nil {
		return Lockout{}, false, err
	}
	l, ok, err := e.stores.Lockouts.Active(ctx, accountID, e.clock())
	return l, ok, storageErr(err)
}

// ClearLockout ends an active temporary lockout now. A permanent lockout is
// left in place and ErrPermanentLockout returned; use UnlockAccount.
func (e *Engine) ClearLockout(ctx context.Context, accountID string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	l, ended, err := e.stores.Lockouts.EndActive(ctx, accountID, e.clock(), false)
	if err != nil {
		return storageErr(err)
	}
	if !ended {
		if l.AccountID != "" && l.Kind() == store.LockoutPermanent {
			return ErrPermanentLockout
		}
		return ErrLockoutNotFound
	}
	e.metricInc(MetricLockoutCleared)
	e.emitAudit(ctx, auditEventLockoutCleared, accountID, "", true, nil, nil)
	return nil
}

// UnlockAccount ends any active lockout of accountID, permanent included,
// recording the unlock time. Unlocking an account without an active lockout
// is a no-op.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	l, ended, err := e.stores.Lockouts.EndActive(ctx, accountID, e.clock(), true)
	if err != nil {
		return storageErr(err)
	}
	if !ended {
		return nil
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, accountID, "", true, nil, map[string]string{"kind": l.Kind().String()})
	if l.Kind() == store.LockoutPermanent {
		e.requestStatus(ctx, accountID, AccountActive)
	}
	return nil
}

// LockAccount imposes an administrative lockout. duration <= 0 locks
// permanently. An active lockout is extended under the usual merge rule.
func (e *Engine) LockAccount(ctx context.Context, accountID string, duration time.Duration) (Lockout, error) {
	if err := e.ready(ctx); err != nil {
		return Lockout{}, err
	}
	now := e.clock()
	p := store.LockoutProposal{Reason: store.ReasonAdministrative}
	if duration > 0 {
		end := now.Add(duration)
		p.End = &end
	}
	l, _, err := e.stores.Lockouts.CreateOrExtend(ctx, accountID, now, p)
	if err != nil {
		return Lockout{}, storageErr(err)
	}
	e.emitAudit(ctx, auditEventAccountLocked, accountID, "", true, nil, map[string]string{"kind": l.Kind().String()})
	if l.Kind() == store.LockoutPermanent {
		e.metricInc(MetricLockoutPermanent)
		e.requestStatus(ctx, accountID, AccountLocked)
	} else {
		e.metricInc(MetricLockoutTemporary)
	}
	return l, nil
}

// requestStatus forwards a status change to the identity provider when
// SuspendOnPermanent is enabled. Failures are logged, never returned.
func (e *Engine) requestStatus(ctx context.Context, accountID string, status AccountStatus) {
	if !e.config.Lockout.SuspendOnPermanent || e.identity == nil {
		return
	}
	if err := e.identity.RequestStatusChange(ctx, accountID, status); err != nil {
		e.log.Warn("account status change request failed",
			zap.String("account_id", accountID),
			zap.Stringer("status", status),
			zap.Error(err),
		)
	}
}
