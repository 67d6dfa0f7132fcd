package accountsec

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// IssueSession creates a session for accountID and returns its plaintext
// token. ttl <= 0 uses Config.Session.DefaultTTL. A token-hash collision is
// reported as ErrSessionTokenCollision and never overwrites a session.
func (e *Engine) IssueSession(ctx context.Context, accountID, sourceAddress, userAgent string, ttl time.Duration) (IssuedSession, error) {
	if err := e.ready(ctx); err != nil {
		return IssuedSession{}, err
	}
	if ttl <= 0 {
		ttl = e.config.Session.DefaultTTL
	}
	token, hash, err := tokens.New()
	if err != nil {
		return IssuedSession{}, err
	}
	now := e.clock()
	sess := Session{
		ID:            tokens.NewID(),
		AccountID:     accountID,
		TokenHash:     hash,
		SourceAddress: orContext(sourceAddress, sourceAddressFromContext, ctx),
		UserAgent:     orContext(userAgent, userAgentFromContext, ctx),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := e.stores.Sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return IssuedSession{}, ErrSessionTokenCollision
		}
		return IssuedSession{}, storageErr(err)
	}
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, accountID, sess.ID, true, nil, nil)
	return IssuedSession{Token: token, Session: sess}, nil
}

// ValidateSession resolves a plaintext token to its session. Unknown and
// malformed tokens yield ErrSessionNotFound; a session at or past its expiry
// yields ErrSessionExpired.
func (e *Engine) ValidateSession(ctx context.Context, token string) (Session, error) {
	if err := e.ready(ctx); err != nil {
		return Session{}, err
	}
	hash, err := tokens.Hash(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return Session{}, ErrSessionNotFound
	}
	sess, ok, err := e.stores.Sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		return Session{}, storageErr(err)
	}
	if !ok {
		e.metricInc(MetricSessionRejected)
		return Session{}, ErrSessionNotFound
	}
	if !sess.Active(e.clock()) {
		e.metricInc(MetricSessionRejected)
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// RevokeSession deletes a session. Revoking an unknown or already revoked
// session succeeds.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	sess, found, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return storageErr(err)
	}
	if !found {
		return nil
	}
	if err := e.stores.Sessions.Delete(ctx, sessionID); err != nil {
		return storageErr(err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, sess.AccountID, sessionID, true, nil, nil)
	return nil
}

// RevokeAllSessions deletes every session of accountID and returns how many
// were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID string) (int, error) {
	return e.revokeSessions(ctx, accountID)
}

// RevokeOtherSessions deletes every session of accountID except keepSessionID.
func (e *Engine) RevokeOtherSessions(ctx context.Context, accountID, keepSessionID string) (int, error) {
	return e.revokeSessions(ctx, accountID, keepSessionID)
}

func (e *Engine) revokeSessions(ctx context.Context, accountID string, keep ...string) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	n, err := e.stores.Sessions.DeleteByAccount(ctx, accountID, keep...)
	if err != nil {
		return 0, storageErr(err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	if n > 0 {
		e.emitAudit(ctx, auditEventSessionsRevoked, accountID, "", true, nil, countMeta("count", int64(n)))
	}
	return n, nil
}

// ExtendSession moves the expiry of a session. newExpiresAt must be after the
// session's creation time.
func (e *Engine) ExtendSession(ctx context.Context, sessionID string, newExpiresAt time.Time) (Session, error) {
	if err := e.ready(ctx); err != nil {
		return Session{}, err
	}
	sess, found, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, storageErr(err)
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	if !newExpiresAt.After(sess.CreatedAt) {
		return Session{}, ErrInvalidExpiry
	}
	found, err = e.stores.Sessions.UpdateExpiry(ctx, sessionID, newExpiresAt)
	if err != nil {
		return Session{}, storageErr(err)
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	sess.ExpiresAt = newExpiresAt
	e.emitAudit(ctx, auditEventSessionExtended, sess.AccountID, sessionID, true, nil, nil)
	return sess, nil
}

// ListSessions returns the sessions of accountID that are active now.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]Session, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	all, err := e.stores.Sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storageErr(err)
	}
	now := e.clock()
	out := all[:0]
	for _, s := range all {
		if s.Active(now) {
			out = append(out, s)
		}
	}
	return out, nil
}
