package accountsec

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/accountsec/store"
)

var (
	// ErrInvalidCredentials is the single outward failure of Login for unknown
	// identifiers, wrong passwords and inactive accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned by Login while a lockout is active and
	// Config.Lockout.RevealLockedState is set.
	ErrAccountLocked = errors.New("account locked")
	// ErrPermanentLockout is returned by ClearLockout for a permanent lockout;
	// only UnlockAccount ends it.
	ErrPermanentLockout = errors.New("lockout is permanent")
	// ErrLockoutNotFound is returned when no lockout is active for the account.
	ErrLockoutNotFound = errors.New("no active lockout")
	// ErrNoCredential is returned when an account has no password set.
	ErrNoCredential = errors.New("account has no credential")

	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionTokenCollision = errors.New("session token collision")
	ErrInvalidExpiry         = errors.New("expiry must be after session creation")

	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")

	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationClosed is returned when resending an accepted or expired invitation.
	ErrInvitationClosed = errors.New("invitation closed")
	// ErrInvalidTransition is returned for invitation status changes outside
	// pending->sent, pending|sent->accepted and pending|sent->expired.
	ErrInvalidTransition = errors.New("invalid invitation transition")

	// ErrPolicyViolation is the parent of every password policy failure.
	ErrPolicyViolation = errors.New("password policy violation")
	ErrPasswordReuse   = fmt.Errorf("%w: password was used recently", ErrPolicyViolation)
	ErrPasswordTooWeak = fmt.Errorf("%w: password too weak", ErrPolicyViolation)

	// ErrStorageUnavailable wraps every backend failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConcurrencyConflict reports a conditional write that kept losing its race.
	ErrConcurrencyConflict = errors.New("concurrent modification")
	// ErrIdentityUnavailable wraps identity provider failures.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")

	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsUnauthenticated reports whether err means the presented credential,
// session or token does not authenticate anyone.
func IsUnauthenticated(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenAlreadyUsed):
		return true
	}
	return false
}

// storageErr maps backend errors onto the engine's taxonomy.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrConcurrencyConflict):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
