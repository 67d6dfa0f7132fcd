package accountsec

import (
	"errors"
	"time"

	"github.com/MrEthical07/accountsec/internal/policy"
	"github.com/MrEthical07/accountsec/password"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; [Builder.Build] validates it.
type Config struct {
	Lockout   LockoutConfig
	Session   SessionConfig
	Tokens    TokenConfig
	Password  PasswordConfig
	Retention RetentionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-attempt lockout policy.
type LockoutConfig struct {
	Window             time.Duration
	TemporaryThreshold int
	TemporaryDuration  time.Duration
	// PermanentThreshold of 0 disables escalation to permanent lockouts.
	PermanentThreshold int
	// RevealLockedState makes Login return ErrAccountLocked instead of
	// ErrInvalidCredentials while a lockout is active.
	RevealLockedState bool
	// SuspendOnPermanent asks the identity provider to mark the account
	// locked when a permanent lockout is created, and active on unlock.
	SuspendOnPermanent bool
}

func (c LockoutConfig) policy() policy.LockoutConfig {
	return policy.LockoutConfig{
		Window:             c.Window,
		TemporaryThreshold: c.TemporaryThreshold,
		TemporaryDuration:  c.TemporaryDuration,
		PermanentThreshold: c.PermanentThreshold,
	}
}

/*
====================================
SESSION / TOKEN CONFIG
====================================
*/

type SessionConfig struct {
	DefaultTTL time.Duration
	// RevokeOnPasswordChange revokes every other session after ChangePassword
	// and all sessions after ResetPassword.
	RevokeOnPasswordChange bool
}

type TokenConfig struct {
	PasswordResetTTL time.Duration
	InvitationTTL    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	// HistoryDepth is how many recent hashes a new password may not repeat.
	HistoryDepth int
	// HistoryRetention is how many history entries are kept after a change.
	HistoryRetention int
	MinLength        int
	// MinStrengthScore is the minimum zxcvbn score (0-4); 0 disables it.
	MinStrengthScore int
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful login.
	UpgradeOnLogin bool
	Argon2         password.Argon2Params
}

/*
====================================
RETENTION CONFIG
====================================
*/

// RetentionConfig bounds how long the maintenance sweep keeps dead records.
type RetentionConfig struct {
	AttemptHorizon time.Duration
	LockoutGrace   time.Duration
	TokenGrace     time.Duration
}

/*
====================================
AUDIT / METRICS / REDIS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RedisConfig applies when the Builder is given a Redis client.
type RedisConfig struct {
	KeyPrefix string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Window:             15 * time.Minute,
			TemporaryThreshold: 5,
			TemporaryDuration:  30 * time.Minute,
			PermanentThreshold: 10,
			RevealLockedState:  true,
		},
		Session: SessionConfig{
			DefaultTTL:             24 * time.Hour,
			RevokeOnPasswordChange: true,
		},
		Tokens: TokenConfig{
			PasswordResetTTL: time.Hour,
			InvitationTTL:    7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			HistoryDepth:     5,
			HistoryRetention: 5,
			MinLength:        10,
			UpgradeOnLogin:   true,
			Argon2:           password.DefaultArgon2Params(),
		},
		Retention: RetentionConfig{
			AttemptHorizon: 90 * 24 * time.Hour,
			LockoutGrace:   30 * 24 * time.Hour,
			TokenGrace:     7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Redis: RedisConfig{KeyPrefix: "acs"},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(msg string) { errs = append(errs, errors.New(msg)) }

	if c.Lockout.Window <= 0 {
		add("Lockout.Window must be > 0")
	}
	if c.Lockout.TemporaryThreshold <= 0 {
		add("Lockout.TemporaryThreshold must be > 0")
	}
	if c.Lockout.TemporaryDuration <= 0 {
		add("Lockout.TemporaryDuration must be > 0")
	}
	if c.Lockout.PermanentThreshold < 0 {
		add("Lockout.PermanentThreshold must be >= 0")
	}
	if c.Lockout.PermanentThreshold > 0 && c.Lockout.PermanentThreshold <= c.Lockout.TemporaryThreshold {
		add("Lockout.PermanentThreshold must exceed TemporaryThreshold")
	}
	if c.Session.DefaultTTL <= 0 {
		add("Session.DefaultTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		add("Tokens.PasswordResetTTL must be > 0")
	}
	if c.Tokens.InvitationTTL <= 0 {
		add("Tokens.InvitationTTL must be > 0")
	}
	if c.Password.HistoryDepth < 0 {
		add("Password.HistoryDepth must be >= 0")
	}
	if c.Password.HistoryRetention < c.Password.HistoryDepth {
		add("Password.HistoryRetention must be >= HistoryDepth")
	}
	if c.Password.MinLength < 1 {
		add("Password.MinLength must be >= 1")
	}
	if c.Password.MinStrengthScore < 0 || c.Password.MinStrengthScore > 4 {
		add("Password.MinStrengthScore must be within 0..4")
	}
	if err := c.Password.Argon2.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Retention.AttemptHorizon < c.Lockout.Window {
		add("Retention.AttemptHorizon must cover Lockout.Window")
	}
	if c.Retention.LockoutGrace < 0 || c.Retention.TokenGrace < 0 {
		add("Retention grace periods must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		add("Audit.BufferSize must be > 0 when audit is enabled")
	}
	return errors.Join(errs...)
}
