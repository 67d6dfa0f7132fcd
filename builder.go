package accountsec

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/accountsec/internal/audit"
	"github.com/MrEthical07/accountsec/internal/stores/memory"
	"github.com/MrEthical07/accountsec/internal/stores/pgstore"
	"github.com/MrEthical07/accountsec/internal/stores/redisstore"
	"github.com/MrEthical07/accountsec/password"
	"github.com/MrEthical07/accountsec/session"
)

// PostgresDB is the subset of *pgxpool.Pool the Postgres stores use.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Builder assembles an [Engine]. A Builder can be used once.
//
// Store selection, per store: an explicit [Builder.WithStores] entry wins,
// then Postgres (credentials, attempts), then Redis (attempts, lockouts,
// sessions, reset tokens, invitations), then the in-memory implementation.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	postgres  PostgresDB
	stores    Stores
	identity  IdentityProvider
	hasher    password.Hasher
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis selects Redis for attempts, lockouts, sessions, reset tokens and
// invitations.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres selects PostgreSQL for credentials and attempts. Run
// [github.com/MrEthical07/accountsec/migrations] first.
func (b *Builder) WithPostgres(db PostgresDB) *Builder {
	b.postgres = db
	return b
}

// WithStores overrides individual stores. Nil fields are ignored.
func (b *Builder) WithStores(s Stores) *Builder {
	b.stores = s
	return b
}

func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithHasher replaces the default Argon2id + bcrypt hasher.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now. Tests use it to drive windows and expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(cfg.Password.Argon2)
		if err != nil {
			return nil, err
		}
		legacy, err := password.NewBcrypt(0)
		if err != nil {
			return nil, err
		}
		hasher = password.NewMulti(argon, legacy)
	}

	e := &Engine{
		config:   cfg,
		stores:   b.resolveStores(cfg, logger),
		identity: b.identity,
		hasher:   hasher,
		policy: password.Policy{
			MinLength: cfg.Password.MinLength,
			MinScore:  cfg.Password.MinStrengthScore,
		},
		metrics: NewMetrics(cfg.Metrics),
		log:     logger,
		now:     clock,
	}

	var sink internalaudit.Sink
	if b.auditSink != nil {
		sink = b.auditSink
	}
	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, logger.Named("audit"))

	b.built = true
	return e, nil
}

func (b *Builder) resolveStores(cfg Config, logger *zap.Logger) Stores {
	s := b.stores

	if b.postgres != nil {
		if s.Credentials == nil {
			s.Credentials = pgstore.NewCredentialStore(b.postgres)
		}
		if s.Attempts == nil {
			s.Attempts = pgstore.NewAttemptStore(b.postgres)
		}
	}

	if b.redis != nil {
		prefix := cfg.Redis.KeyPrefix
		if s.Attempts == nil {
			s.Attempts = redisstore.NewAttemptStore(b.redis, prefix)
		}
		if s.Lockouts == nil {
			s.Lockouts = redisstore.NewLockoutStore(b.redis, prefix)
		}
		if s.Sessions == nil {
			s.Sessions = session.NewStore(b.redis, prefix, session.WithLogger(logger.Named("session")))
		}
		if s.ResetTokens == nil {
			s.ResetTokens = redisstore.NewResetTokenStore(b.redis, prefix)
		}
		if s.Invitations == nil {
			s.Invitations = redisstore.NewInvitationStore(b.redis, prefix)
		}
	}

	if s.Attempts == nil {
		s.Attempts = memory.NewAttemptStore()
	}
	if s.Lockouts == nil {
		s.Lockouts = memory.NewLockoutStore()
	}
	if s.Sessions == nil {
		s.Sessions = memory.NewSessionStore()
	}
	if s.ResetTokens == nil {
		s.ResetTokens = memory.NewResetTokenStore()
	}
	if s.Invitations == nil {
		s.Invitations = memory.NewInvitationStore()
	}
	if s.Credentials == nil {
		s.Credentials = memory.NewCredentialStore()
	}
	return s
}
