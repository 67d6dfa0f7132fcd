package accountsec

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec/password"
)

// SetPassword stores newHash as the live hash of accountID and appends it to
// the password history in one atomic step. The hash is opaque to the engine.
func (e *Engine) SetPassword(ctx context.Context, accountID, newHash string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	if newHash == "" {
		return errors.New("password hash must not be empty")
	}
	if err := e.stores.Credentials.SetPassword(ctx, accountID, newHash, e.clock()); err != nil {
		return storageErr(err)
	}
	e.emitAudit(ctx, auditEventPasswordSet, accountID, "", true, nil, nil)
	return nil
}

// WasPreviouslyUsed reports whether candidateHash equals one of the newest
// depth history entries. depth <= 0 uses Config.Password.HistoryDepth.
// Entries older than depth are deliberately not consulted.
func (e *Engine) WasPreviouslyUsed(ctx context.Context, accountID, candidateHash string, depth int) (bool, error) {
	entries, err := e.recentHistory(ctx, accountID, depth)
	if err != nil {
		return false, err
	}
	for _, h := range entries {
		if h.PasswordHash == candidateHash {
			return true, nil
		}
	}
	return false, nil
}

// WasPasswordPreviouslyUsed is WasPreviouslyUsed for a plaintext candidate.
// Salted hashes never compare equal, so each entry is verified instead.
func (e *Engine) WasPasswordPreviouslyUsed(ctx context.Context, accountID, plaintext string, depth int) (bool, error) {
	entries, err := e.recentHistory(ctx, accountID, depth)
	if err != nil {
		return false, err
	}
	for _, h := range entries {
		ok, err := e.hasher.Verify(plaintext, h.PasswordHash)
		if err != nil {
			// an unreadable legacy entry cannot match; keep checking the rest
			e.log.Debug("skipping unverifiable history entry", zap.String("account_id", accountID), zap.Error(err))
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) recentHistory(ctx context.Context, accountID string, depth int) ([]PasswordHistoryEntry, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = e.config.Password.HistoryDepth
	}
	if depth <= 0 {
		return nil, nil
	}
	entries, err := e.stores.Credentials.History(ctx, accountID, depth)
	return entries, storageErr(err)
}

// PasswordHistory returns up to limit history entries, newest first.
func (e *Engine) PasswordHistory(ctx context.Context, accountID string, limit int) ([]PasswordHistoryEntry, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	out, err := e.stores.Credentials.History(ctx, accountID, limit)
	return out, storageErr(err)
}

// PruneHistory keeps the newest keepCount entries of accountID. The entry
// holding the live hash is never deleted.
func (e *Engine) PruneHistory(ctx context.Context, accountID string, keepCount int) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	if keepCount < 0 {
		return 0, errors.New("keepCount must be >= 0")
	}
	n, err := e.stores.Credentials.PruneHistory(ctx, accountID, keepCount)
	return n, storageErr(err)
}

// ChangePassword verifies oldPassword, checks newPassword against the
// strength and reuse policy, stores it and prunes the history to
// Config.Password.HistoryRetention. Outstanding reset tokens are invalidated
// and, with Config.Session.RevokeOnPasswordChange, every session except
// keepSessionID is revoked.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword, keepSessionID string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	current, found, err := e.stores.Credentials.CurrentHash(ctx, accountID)
	if err != nil {
		return storageErr(err)
	}
	if !found {
		return ErrNoCredential
	}
	ok, err := e.hasher.Verify(oldPassword, current)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if err := e.replacePassword(ctx, accountID, newPassword); err != nil {
		return err
	}

	if _, err := e.InvalidatePasswordResets(ctx, accountID); err != nil {
		e.log.Warn("invalidate reset tokens after password change failed", zap.String("account_id", accountID), zap.Error(err))
	}
	if e.config.Session.RevokeOnPasswordChange {
		if _, err := e.RevokeOtherSessions(ctx, accountID, keepSessionID); err != nil {
			e.log.Warn("revoke sessions after password change failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return nil
}

// SetInitialPassword applies the strength policy and stores the first
// password of an account, typically after AcceptInvitation.
func (e *Engine) SetInitialPassword(ctx context.Context, accountID, newPassword string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	return e.replacePassword(ctx, accountID, newPassword)
}

// replacePassword runs policy, reuse check, hash, set and prune.
func (e *Engine) replacePassword(ctx context.Context, accountID, newPassword string) error {
	if err := e.policy.Check(newPassword, accountID); err != nil {
		var pe *password.PolicyError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w: %s", ErrPasswordTooWeak, pe.Message)
		}
		return err
	}
	reused, err := e.WasPasswordPreviouslyUsed(ctx, accountID, newPassword, 0)
	if err != nil {
		return err
	}
	if reused {
		e.metricInc(MetricPasswordReuseRejected)
		e.emitAudit(ctx, auditEventPasswordReuse, accountID, "", false, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.SetPassword(ctx, accountID, hash); err != nil {
		return err
	}
	e.metricInc(MetricPasswordChanged)
	if keep := e.config.Password.HistoryRetention; keep > 0 {
		if _, err := e.stores.Credentials.PruneHistory(ctx, accountID, keep); err != nil {
			e.log.Warn("password history prune failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return nil
}
