package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/accountsec"
	"github.com/MrEthical07/accountsec/configfile"
)

func TestRunDemoPurgesSeededRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })

	cfg := accountsec.DefaultConfig()
	clock := newDemoClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	engine, err := accountsec.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityProvider(sweeperIdentity{}).
		WithClock(clock.Now).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	report, err := runDemo(context.Background(), engine, clock, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	if report.AttemptsPurged != 3 {
		t.Fatalf("attempts purged = %d, want 3", report.AttemptsPurged)
	}
	if report.LockoutsPurged != 1 || report.SessionsPurged != 1 || report.ResetTokensPurged != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.InvitationsExpired != 1 {
		t.Fatalf("invitations expired = %d, want 1", report.InvitationsExpired)
	}
}

func TestRunMigrateRequiresURL(t *testing.T) {
	file, err := configfile.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := run(context.Background(), file, zaptest.NewLogger(t), true, false, false); err == nil {
		t.Fatal("expected error without postgres.url")
	}
}

func TestLoopRejectsNonPositiveInterval(t *testing.T) {
	if err := loop(context.Background(), nil, 0, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected interval error")
	}
}
