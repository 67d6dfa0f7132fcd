package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec"
	"github.com/MrEthical07/accountsec/store"
)

// sweeperIdentity backs an engine that only runs maintenance. Sweep never
// resolves accounts.
type sweeperIdentity struct{}

func (sweeperIdentity) ResolveAccount(context.Context, string) (accountsec.AccountRecord, bool, error) {
	return accountsec.AccountRecord{}, false, nil
}

func (sweeperIdentity) RequestStatusChange(context.Context, string, accountsec.AccountStatus) error {
	return nil
}

type demoClock struct {
	mu  sync.Mutex
	now time.Time
}

func newDemoClock(start time.Time) *demoClock {
	return &demoClock{now: start.UTC()}
}

func (c *demoClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *demoClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// runDemo seeds one of every sweepable record, moves the clock past every
// retention horizon and sweeps once.
func runDemo(ctx context.Context, engine *accountsec.Engine, clock *demoClock, cfg accountsec.Config, logger *zap.Logger) (accountsec.SweepReport, error) {
	const account = "demo-account"

	for i := 0; i < 3; i++ {
		if err := engine.RecordAttempt(ctx, accountsec.LoginAttempt{
			AccountID:     account,
			Identifier:    "demo@example.com",
			SourceAddress: "203.0.113.7",
			Outcome:       store.OutcomeFailure,
			OccurredAt:    clock.Now(),
		}); err != nil {
			return accountsec.SweepReport{}, fmt.Errorf("seed attempt: %w", err)
		}
	}
	if _, err := engine.LockAccount(ctx, account, time.Minute); err != nil {
		return accountsec.SweepReport{}, fmt.Errorf("seed lockout: %w", err)
	}
	if _, err := engine.IssueSession(ctx, account, "203.0.113.7", "demo", time.Minute); err != nil {
		return accountsec.SweepReport{}, fmt.Errorf("seed session: %w", err)
	}
	if _, err := engine.IssuePasswordReset(ctx, account, time.Minute); err != nil {
		return accountsec.SweepReport{}, fmt.Errorf("seed reset token: %w", err)
	}
	if _, err := engine.CreateInvitation(ctx, account, time.Minute); err != nil {
		return accountsec.SweepReport{}, fmt.Errorf("seed invitation: %w", err)
	}

	ret := cfg.Retention
	horizon := max(ret.AttemptHorizon, ret.LockoutGrace, ret.TokenGrace)
	clock.Advance(horizon + time.Hour)

	report, err := engine.Sweep(ctx)
	if err != nil {
		return report, err
	}
	logger.Info("demo sweep",
		zap.Int64("attempts", report.AttemptsPurged),
		zap.Int64("lockouts", report.LockoutsPurged),
		zap.Int64("sessions", report.SessionsPurged),
		zap.Int64("reset_tokens", report.ResetTokensPurged),
		zap.Int("invitations_expired", report.InvitationsExpired),
	)
	return report, nil
}
