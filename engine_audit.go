package accountsec

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLockoutCreated     = "lockout_created"
	auditEventLockoutExtended    = "lockout_extended"
	auditEventLockoutCleared     = "lockout_cleared"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventAccountLocked      = "account_locked_admin"
	auditEventSessionIssued      = "session_issued"
	auditEventSessionRevoked     = "session_revoked"
	auditEventSessionsRevoked    = "sessions_revoked"
	auditEventSessionExtended    = "session_extended"
	auditEventResetIssued        = "password_reset_issued"
	auditEventResetRedeemed      = "password_reset_redeemed"
	auditEventResetRejected      = "password_reset_rejected"
	auditEventResetsInvalidated  = "password_resets_invalidated"
	auditEventInvitationCreated  = "invitation_created"
	auditEventInvitationSent     = "invitation_sent"
	auditEventInvitationResent   = "invitation_resent"
	auditEventInvitationAccepted = "invitation_accepted"
	auditEventInvitationExpired  = "invitation_expired"
	auditEventPasswordSet        = "password_set"
	auditEventPasswordReuse      = "password_reuse_rejected"
	auditEventSweep              = "maintenance_sweep"
)

// auditErrorCode maps an engine error to the stable code stored in events.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrInvitationNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrPolicyViolation):
		return "password_policy"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType, accountID, sessionID string, success bool, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp:     e.clock(),
		Type:          eventType,
		AccountID:     accountID,
		SessionID:     sessionID,
		SourceAddress: sourceAddressFromContext(ctx),
		Success:       success,
		Error:         auditErrorCode(err),
		Metadata:      metadata,
	})
}

func countMeta(key string, n int64) map[string]string {
	return map[string]string{key: strconv.FormatInt(n, 10)}
}
