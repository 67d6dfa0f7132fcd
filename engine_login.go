package accountsec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec/store"
)

// rehasher is implemented by hashers that can flag outdated hashes.
type rehasher interface {
	NeedsRehash(encodedHash string) bool
}

// Login authenticates req.
//
// Order of checks: resolve the identifier, refuse locked accounts, refuse
// inactive accounts, verify the password, record the attempt, then either
// evaluate the lockout policy (failure) or issue a session (success). Every
// failure is recorded before Login returns, and a success never erases
// earlier failures.
//
// Unknown identifiers, wrong passwords and inactive accounts all return
// ErrInvalidCredentials. A locked account returns ErrAccountLocked unless
// Config.Lockout.RevealLockedState is false.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := e.ready(ctx); err != nil {
		return LoginResult{}, err
	}
	started := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(started)) }()

	req.SourceAddress = orContext(req.SourceAddress, sourceAddressFromContext, ctx)
	req.UserAgent = orContext(req.UserAgent, userAgentFromContext, ctx)
	ctx = WithSourceAddress(ctx, req.SourceAddress)

	account, found, err := e.identity.ResolveAccount(ctx, req.Identifier)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if !found {
		return LoginResult{}, e.failLogin(ctx, req, "", store.FailureUnknownAccount, ErrInvalidCredentials)
	}

	locked, err := e.IsLocked(ctx, account.AccountID)
	if err != nil {
		return LoginResult{}, err
	}
	if locked {
		e.metricInc(MetricLoginLocked)
		outward := ErrInvalidCredentials
		if e.config.Lockout.RevealLockedState {
			outward = ErrAccountLocked
		}
		return LoginResult{}, e.failLogin(ctx, req, account.AccountID, store.FailureLocked, outward)
	}

	if account.Status != AccountActive {
		return LoginResult{}, e.failLogin(ctx, req, account.AccountID, store.FailureAccountInactive, ErrInvalidCredentials)
	}

	hash, hasHash, err := e.stores.Credentials.CurrentHash(ctx, account.AccountID)
	if err != nil {
		return LoginResult{}, storageErr(err)
	}
	ok := false
	if hasHash {
		ok, err = e.hasher.Verify(req.Password, hash)
		if err != nil {
			e.log.Warn("stored password hash unverifiable", zap.String("account_id", account.AccountID), zap.Error(err))
			ok = false
		}
	}
	if !ok {
		if err := e.failLogin(ctx, req, account.AccountID, store.FailureBadPassword, ErrInvalidCredentials); !errors.Is(err, ErrInvalidCredentials) {
			return LoginResult{}, err
		}
		if _, err := e.EvaluateAfterFailure(ctx, account.AccountID); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := e.RecordAttempt(ctx, LoginAttempt{
		AccountID:     account.AccountID,
		Identifier:    req.Identifier,
		SourceAddress: req.SourceAddress,
		UserAgent:     req.UserAgent,
		Outcome:       store.OutcomeSuccess,
	}); err != nil {
		return LoginResult{}, err
	}

	issued, err := e.IssueSession(ctx, account.AccountID, req.SourceAddress, req.UserAgent, 0)
	if err != nil {
		return LoginResult{}, err
	}

	result := LoginResult{AccountID: account.AccountID, Session: issued}
	if e.config.Password.UpgradeOnLogin {
		result.Rehashed = e.maybeRehash(ctx, account.AccountID, req.Password, hash)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, account.AccountID, issued.Session.ID, true, nil, nil)
	return result, nil
}

// failLogin records a failed attempt and returns outward, or the storage
// error when the attempt could not be recorded.
func (e *Engine) failLogin(ctx context.Context, req LoginRequest, accountID string, reason store.FailureReason, outward error) error {
	err := e.RecordAttempt(ctx, LoginAttempt{
		AccountID:     accountID,
		Identifier:    req.Identifier,
		SourceAddress: req.SourceAddress,
		UserAgent:     req.UserAgent,
		Outcome:       store.OutcomeFailure,
		FailureReason: reason,
	})
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, accountID, "", false, outward, map[string]string{"reason": reason.String()})
	if err != nil {
		return err
	}
	return outward
}

// maybeRehash replaces a legacy or weaker hash after a successful login. The
// history entry it adds equals the new live hash.
func (e *Engine) maybeRehash(ctx context.Context, accountID, plaintext, current string) bool {
	r, ok := e.hasher.(rehasher)
	if !ok || !r.NeedsRehash(current) {
		return false
	}
	fresh, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.log.Warn("rehash on login failed", zap.String("account_id", accountID), zap.Error(err))
		return false
	}
	if err := e.stores.Credentials.SetPassword(ctx, accountID, fresh, e.clock()); err != nil {
		e.log.Warn("rehash on login not stored", zap.String("account_id", accountID), zap.Error(err))
		return false
	}
	return true
}
