package accountsec

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// IssuePasswordReset creates a single-use reset token for accountID. ttl <= 0
// uses Config.Tokens.PasswordResetTTL. Earlier tokens stay valid until they
// expire, are redeemed, or InvalidatePasswordResets is called.
func (e *Engine) IssuePasswordReset(ctx context.Context, accountID string, ttl time.Duration) (IssuedResetToken, error) {
	if err := e.ready(ctx); err != nil {
		return IssuedResetToken{}, err
	}
	if ttl <= 0 {
		ttl = e.config.Tokens.PasswordResetTTL
	}
	token, hash, err := tokens.New()
	if err != nil {
		return IssuedResetToken{}, err
	}
	now := e.clock()
	rec := PasswordResetToken{
		ID:        tokens.NewID(),
		AccountID: accountID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.stores.ResetTokens.Create(ctx, rec); err != nil {
		return IssuedResetToken{}, storageErr(err)
	}
	e.metricInc(MetricPasswordResetIssued)
	e.emitAudit(ctx, auditEventResetIssued, accountID, "", true, nil, nil)
	return IssuedResetToken{Token: token, Record: rec}, nil
}

// RedeemPasswordReset consumes a reset token and returns its account. Of any
// number of concurrent redemptions of one token at most one succeeds.
func (e *Engine) RedeemPasswordReset(ctx context.Context, token string) (string, error) {
	if err := e.ready(ctx); err != nil {
		return "", err
	}
	hash, err := tokens.Hash(token)
	if err != nil {
		e.metricInc(MetricPasswordResetRejected)
		return "", ErrTokenNotFound
	}
	rec, outcome, err := e.stores.ResetTokens.Redeem(ctx, hash, e.clock())
	if err != nil {
		return "", storageErr(err)
	}
	if err := outcomeErr(outcome); err != nil {
		e.metricInc(MetricPasswordResetRejected)
		e.emitAudit(ctx, auditEventResetRejected, rec.AccountID, "", false, err, nil)
		return "", err
	}
	e.metricInc(MetricPasswordResetRedeemed)
	e.emitAudit(ctx, auditEventResetRedeemed, rec.AccountID, "", true, nil, nil)
	return rec.AccountID, nil
}

// ResetPassword redeems token and sets newPassword for its account. The new
// password is subject to the strength and reuse policy. On success every
// other reset token of the account is invalidated and, with
// Config.Session.RevokeOnPasswordChange, all sessions are revoked.
//
// The token is consumed before the policy check, so a rejected password
// requires a new token.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	accountID, err := e.RedeemPasswordReset(ctx, token)
	if err != nil {
		return "", err
	}
	if err := e.replacePassword(ctx, accountID, newPassword); err != nil {
		return accountID, err
	}
	if _, err := e.InvalidatePasswordResets(ctx, accountID); err != nil {
		e.log.Warn("invalidate reset tokens after reset failed", zap.String("account_id", accountID), zap.Error(err))
	}
	if e.config.Session.RevokeOnPasswordChange {
		if _, err := e.RevokeAllSessions(ctx, accountID); err != nil {
			e.log.Warn("revoke sessions after reset failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return accountID, nil
}

// InvalidatePasswordResets marks every unused reset token of accountID as
// used now and returns how many were affected.
func (e *Engine) InvalidatePasswordResets(ctx context.Context, accountID string) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	n, err := e.stores.ResetTokens.InvalidateAccount(ctx, accountID, e.clock())
	if err != nil {
		return 0, storageErr(err)
	}
	if n > 0 {
		e.emitAudit(ctx, auditEventResetsInvalidated, accountID, "", true, nil, countMeta("count", int64(n)))
	}
	return n, nil
}

func outcomeErr(o store.RedeemOutcome) error {
	switch o {
	case store.RedeemOK:
		return nil
	case store.RedeemExpired:
		return ErrTokenExpired
	case store.RedeemAlreadyUsed:
		return ErrTokenAlreadyUsed
	case store.RedeemNotFound:
		return ErrTokenNotFound
	default:
		return errors.New("unknown redeem outcome")
	}
}
