package accountsec

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// CreateInvitation creates a pending invitation for accountID. ttl <= 0 uses
// Config.Tokens.InvitationTTL.
func (e *Engine) CreateInvitation(ctx context.Context, accountID string, ttl time.Duration) (IssuedInvitation, error) {
	if err := e.ready(ctx); err != nil {
		return IssuedInvitation{}, err
	}
	if ttl <= 0 {
		ttl = e.config.Tokens.InvitationTTL
	}
	token, hash, err := tokens.New()
	if err != nil {
		return IssuedInvitation{}, err
	}
	now := e.clock()
	inv := Invitation{
		ID:        tokens.NewID(),
		AccountID: accountID,
		TokenHash: hash,
		Status:    store.InvitationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.stores.Invitations.Create(ctx, inv); err != nil {
		return IssuedInvitation{}, storageErr(err)
	}
	e.metricInc(MetricInvitationCreated)
	e.emitAudit(ctx, auditEventInvitationCreated, accountID, "", true, nil, map[string]string{"invitation_id": inv.ID})
	return IssuedInvitation{Token: token, Invitation: inv}, nil
}

// MarkInvitationSent records delivery of a pending invitation.
func (e *Engine) MarkInvitationSent(ctx context.Context, invitationID string) (Invitation, error) {
	inv, err := e.transitionInvitation(ctx, invitationID, store.InvitationSent)
	if err != nil {
		return Invitation{}, err
	}
	e.emitAudit(ctx, auditEventInvitationSent, inv.AccountID, "", true, nil, map[string]string{"invitation_id": inv.ID})
	return inv, nil
}

// ResendInvitation records a redelivery: ResendCount is incremented and
// SentAt refreshed; the status does not change. Accepted or expired
// invitations yield ErrInvitationClosed. It returns the new ResendCount.
func (e *Engine) ResendInvitation(ctx context.Context, invitationID string) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	inv, err := e.stores.Invitations.Resend(ctx, invitationID, e.clock())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrInvitationNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return 0, ErrInvitationClosed
	case err != nil:
		return 0, storageErr(err)
	}
	e.emitAudit(ctx, auditEventInvitationResent, inv.AccountID, "", true, nil, countMeta("resend_count", int64(inv.ResendCount)))
	return inv.ResendCount, nil
}

// AcceptInvitation redeems an invitation token. Of any number of concurrent
// acceptances at most one succeeds; the rest see ErrTokenAlreadyUsed.
func (e *Engine) AcceptInvitation(ctx context.Context, token string) (Invitation, error) {
	if err := e.ready(ctx); err != nil {
		return Invitation{}, err
	}
	hash, err := tokens.Hash(token)
	if err != nil {
		return Invitation{}, ErrTokenNotFound
	}
	inv, outcome, err := e.stores.Invitations.Accept(ctx, hash, e.clock())
	if err != nil {
		return Invitation{}, storageErr(err)
	}
	if err := outcomeErr(outcome); err != nil {
		return Invitation{}, err
	}
	e.metricInc(MetricInvitationAccepted)
	e.emitAudit(ctx, auditEventInvitationAccepted, inv.AccountID, "", true, nil, map[string]string{"invitation_id": inv.ID})
	return inv, nil
}

// FindExpiredInvitations lists pending and sent invitations whose ExpiresAt
// is at or before now. The boundary matches AcceptInvitation, which rejects a
// token from ExpiresAt on, so no invitation is both unredeemable and unlisted.
// It changes nothing.
func (e *Engine) FindExpiredInvitations(ctx context.Context) ([]Invitation, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	out, err := e.stores.Invitations.FindExpired(ctx, e.clock())
	return out, storageErr(err)
}

// ExpireInvitation moves a pending or sent invitation to expired.
func (e *Engine) ExpireInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	inv, err := e.transitionInvitation(ctx, invitationID, store.InvitationExpired)
	if err != nil {
		return Invitation{}, err
	}
	e.metricInc(MetricInvitationExpired)
	e.emitAudit(ctx, auditEventInvitationExpired, inv.AccountID, "", true, nil, map[string]string{"invitation_id": inv.ID})
	return inv, nil
}

// GetInvitation returns an invitation by ID.
func (e *Engine) GetInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	if err := e.ready(ctx); err != nil {
		return Invitation{}, err
	}
	inv, ok, err := e.stores.Invitations.Get(ctx, invitationID)
	if err != nil {
		return Invitation{}, storageErr(err)
	}
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return inv, nil
}

func (e *Engine) transitionInvitation(ctx context.Context, id string, next store.InvitationStatus) (Invitation, error) {
	if err := e.ready(ctx); err != nil {
		return Invitation{}, err
	}
	inv, err := e.stores.Invitations.Transition(ctx, id, next, e.clock())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Invitation{}, ErrInvitationNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return Invitation{}, ErrInvalidTransition
	case err != nil:
		return Invitation{}, storageErr(err)
	}
	return inv, nil
}
