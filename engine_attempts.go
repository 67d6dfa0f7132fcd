package accountsec

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// RecordAttempt appends attempt to the attempt log. A zero ID or OccurredAt
// is filled in; an empty SourceAddress or UserAgent is taken from ctx.
func (e *Engine) RecordAttempt(ctx context.Context, attempt LoginAttempt) error {
	if err := e.ready(ctx); err != nil {
		return err
	}
	if attempt.Outcome != store.OutcomeSuccess && attempt.Outcome != store.OutcomeFailure {
		return errors.New("attempt outcome must be success or failure")
	}
	if attempt.ID == "" {
		attempt.ID = tokens.NewID()
	}
	if attempt.OccurredAt.IsZero() {
		attempt.OccurredAt = e.clock()
	}
	attempt.SourceAddress = orContext(attempt.SourceAddress, sourceAddressFromContext, ctx)
	attempt.UserAgent = orContext(attempt.UserAgent, userAgentFromContext, ctx)
	return storageErr(e.stores.Attempts.Append(ctx, attempt))
}

// CountFailuresForAccount counts failed attempts of accountID at or after windowStart.
func (e *Engine) CountFailuresForAccount(ctx context.Context, accountID string, windowStart time.Time) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	n, err := e.stores.Attempts.CountAccountFailures(ctx, accountID, windowStart)
	return n, storageErr(err)
}

// CountFailuresForAddress counts failed attempts from addr at or after
// windowStart, including attempts against unknown identifiers.
func (e *Engine) CountFailuresForAddress(ctx context.Context, addr string, windowStart time.Time) (int, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	n, err := e.stores.Attempts.CountAddressFailures(ctx, addr, windowStart)
	return n, storageErr(err)
}

// RecentFailures returns the failures of accountID since windowStart, newest first.
func (e *Engine) RecentFailures(ctx context.Context, accountID string, windowStart time.Time) ([]LoginAttempt, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	out, err := e.stores.Attempts.RecentAccountFailures(ctx, accountID, windowStart)
	return out, storageErr(err)
}

// PurgeAttempts deletes attempts older than olderThan. Lockout decisions only
// ever look at the configured window, so purging is never needed for
// correctness.
func (e *Engine) PurgeAttempts(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := e.ready(ctx); err != nil {
		return 0, err
	}
	n, err := e.stores.Attempts.PurgeBefore(ctx, olderThan)
	return n, storageErr(err)
}
