package accountsec

import (
	"context"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/accountsec/internal/audit"
	"github.com/MrEthical07/accountsec/password"
)

// Engine is the account security engine. It is safe for concurrent use once
// built. Every correctness-relevant write is delegated to a store operation
// that is atomic for its key.
type Engine struct {
	config   Config
	stores   Stores
	identity IdentityProvider
	hasher   password.Hasher
	policy   password.Policy
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

// Close flushes queued audit events. Stores and clients passed to the
// Builder are owned by the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) ready(ctx context.Context) error {
	if e == nil || e.stores.Attempts == nil {
		return ErrEngineNotReady
	}
	return ctx.Err()
}
