package configfile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/accountsec"
	"github.com/MrEthical07/accountsec/password"
)

// EnvPrefix is prepended to every environment variable, e.g.
// ACCOUNTSEC_REDIS_ADDR for redis.addr.
const EnvPrefix = "ACCOUNTSEC"

// File is the on-disk layout. Keys are snake_case in YAML and upper-case
// with underscores in the environment.
type File struct {
	App       AppSettings       `mapstructure:"app"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Session   SessionSettings   `mapstructure:"session"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Password  PasswordSettings  `mapstructure:"password"`
	Retention RetentionSettings `mapstructure:"retention"`
	Audit     AuditSettings     `mapstructure:"audit"`
}

type AppSettings struct {
	Env           string        `mapstructure:"env"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RedisSettings selects Redis-backed stores when Addr is set.
type RedisSettings struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresSettings selects Postgres-backed stores when URL is set.
type PostgresSettings struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// KafkaSettings enables the Kafka audit sink when Brokers is non-empty.
type KafkaSettings struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type TelemetrySettings struct {
	MetricsAddr    string `mapstructure:"metrics_addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	LatencyEnabled bool   `mapstructure:"latency_histograms"`
}

type LockoutSettings struct {
	Window             time.Duration `mapstructure:"window"`
	TemporaryThreshold int           `mapstructure:"temporary_threshold"`
	TemporaryDuration  time.Duration `mapstructure:"temporary_duration"`
	PermanentThreshold int           `mapstructure:"permanent_threshold"`
	RevealLockedState  bool          `mapstructure:"reveal_locked_state"`
	SuspendOnPermanent bool          `mapstructure:"suspend_on_permanent"`
}

type SessionSettings struct {
	DefaultTTL             time.Duration `mapstructure:"default_ttl"`
	RevokeOnPasswordChange bool          `mapstructure:"revoke_on_password_change"`
}

type TokenSettings struct {
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	InvitationTTL    time.Duration `mapstructure:"invitation_ttl"`
}

type PasswordSettings struct {
	HistoryDepth     int            `mapstructure:"history_depth"`
	HistoryRetention int            `mapstructure:"history_retention"`
	MinLength        int            `mapstructure:"min_length"`
	MinStrengthScore int            `mapstructure:"min_strength_score"`
	UpgradeOnLogin   bool           `mapstructure:"upgrade_on_login"`
	Argon2           Argon2Settings `mapstructure:"argon2"`
}

type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type RetentionSettings struct {
	AttemptHorizon time.Duration `mapstructure:"attempt_horizon"`
	LockoutGrace   time.Duration `mapstructure:"lockout_grace"`
	TokenGrace     time.Duration `mapstructure:"token_grace"`
}

type AuditSettings struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// Load reads path (YAML, optional when empty) and overlays ACCOUNTSEC_*
// environment variables. Missing keys take the engine defaults.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	setDefaults(v)
	if err := bindEnvs(v); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &f, nil
}

// EngineConfig converts the file into an engine configuration and validates
// it.
func (f *File) EngineConfig() (accountsec.Config, error) {
	if f == nil {
		return accountsec.Config{}, errors.New("nil config file")
	}
	cfg := accountsec.DefaultConfig()
	cfg.Lockout = accountsec.LockoutConfig{
		Window:             f.Lockout.Window,
		TemporaryThreshold: f.Lockout.TemporaryThreshold,
		TemporaryDuration:  f.Lockout.TemporaryDuration,
		PermanentThreshold: f.Lockout.PermanentThreshold,
		RevealLockedState:  f.Lockout.RevealLockedState,
		SuspendOnPermanent: f.Lockout.SuspendOnPermanent,
	}
	cfg.Session = accountsec.SessionConfig{
		DefaultTTL:             f.Session.DefaultTTL,
		RevokeOnPasswordChange: f.Session.RevokeOnPasswordChange,
	}
	cfg.Tokens = accountsec.TokenConfig{
		PasswordResetTTL: f.Tokens.PasswordResetTTL,
		InvitationTTL:    f.Tokens.InvitationTTL,
	}
	cfg.Password = accountsec.PasswordConfig{
		HistoryDepth:     f.Password.HistoryDepth,
		HistoryRetention: f.Password.HistoryRetention,
		MinLength:        f.Password.MinLength,
		MinStrengthScore: f.Password.MinStrengthScore,
		UpgradeOnLogin:   f.Password.UpgradeOnLogin,
		Argon2: password.Argon2Params{
			Memory:      f.Password.Argon2.Memory,
			Time:        f.Password.Argon2.Iterations,
			Parallelism: f.Password.Argon2.Parallelism,
			SaltLength:  f.Password.Argon2.SaltLength,
			KeyLength:   f.Password.Argon2.KeyLength,
		},
	}
	cfg.Retention = accountsec.RetentionConfig{
		AttemptHorizon: f.Retention.AttemptHorizon,
		LockoutGrace:   f.Retention.LockoutGrace,
		TokenGrace:     f.Retention.TokenGrace,
	}
	cfg.Audit = accountsec.AuditConfig{
		Enabled:    f.Audit.Enabled,
		BufferSize: f.Audit.BufferSize,
		DropIfFull: f.Audit.DropIfFull,
	}
	cfg.Metrics = accountsec.MetricsConfig{
		Enabled:                 f.Telemetry.MetricsEnabled,
		EnableLatencyHistograms: f.Telemetry.LatencyEnabled,
	}
	cfg.Redis.KeyPrefix = f.Redis.KeyPrefix

	if err := cfg.Validate(); err != nil {
		return accountsec.Config{}, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := accountsec.DefaultConfig()

	v.SetDefault("app.env", "development")
	v.SetDefault("app.sweep_interval", "5m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "accountsec.audit")
	v.SetDefault("kafka.client_id", "accountsec")

	v.SetDefault("telemetry.metrics_addr", "")
	v.SetDefault("telemetry.metrics_enabled", d.Metrics.Enabled)
	v.SetDefault("telemetry.latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("lockout.window", d.Lockout.Window)
	v.SetDefault("lockout.temporary_threshold", d.Lockout.TemporaryThreshold)
	v.SetDefault("lockout.temporary_duration", d.Lockout.TemporaryDuration)
	v.SetDefault("lockout.permanent_threshold", d.Lockout.PermanentThreshold)
	v.SetDefault("lockout.reveal_locked_state", d.Lockout.RevealLockedState)
	v.SetDefault("lockout.suspend_on_permanent", d.Lockout.SuspendOnPermanent)

	v.SetDefault("session.default_ttl", d.Session.DefaultTTL)
	v.SetDefault("session.revoke_on_password_change", d.Session.RevokeOnPasswordChange)

	v.SetDefault("tokens.password_reset_ttl", d.Tokens.PasswordResetTTL)
	v.SetDefault("tokens.invitation_ttl", d.Tokens.InvitationTTL)

	v.SetDefault("password.history_depth", d.Password.HistoryDepth)
	v.SetDefault("password.history_retention", d.Password.HistoryRetention)
	v.SetDefault("password.min_length", d.Password.MinLength)
	v.SetDefault("password.min_strength_score", d.Password.MinStrengthScore)
	v.SetDefault("password.upgrade_on_login", d.Password.UpgradeOnLogin)
	v.SetDefault("password.argon2.memory", d.Password.Argon2.Memory)
	v.SetDefault("password.argon2.iterations", d.Password.Argon2.Time)
	v.SetDefault("password.argon2.parallelism", d.Password.Argon2.Parallelism)
	v.SetDefault("password.argon2.salt_length", d.Password.Argon2.SaltLength)
	v.SetDefault("password.argon2.key_length", d.Password.Argon2.KeyLength)

	v.SetDefault("retention.attempt_horizon", d.Retention.AttemptHorizon)
	v.SetDefault("retention.lockout_grace", d.Retention.LockoutGrace)
	v.SetDefault("retention.token_grace", d.Retention.TokenGrace)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)
}

// bindEnvs makes every defaulted key reachable from the environment, which
// Unmarshal alone does not do for nested keys.
func bindEnvs(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
