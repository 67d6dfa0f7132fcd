package accountsec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

func TestLoginSuccessIssuesSession(t *testing.T) {
	env := newTestEnv(t)
	env.setInitialPassword(t)

	res, err := env.login(alicePassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccountID != aliceID || res.Session.Token == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	sess, err := env.engine.ValidateSession(context.Background(), res.Session.Token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if sess.SourceAddress != "198.51.100.4" || sess.UserAgent != "test-agent" {
		t.Fatalf("session lost request metadata: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(testEpoch.Add(24 * time.Hour)) {
		t.Fatalf("expires at %v, want default ttl", sess.ExpiresAt)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.setInitialPassword(t)
	env.identity.byIdentifier["bob@example.com"] = AccountRecord{AccountID: "acct-bob", Identifier: "bob@example.com", Status: AccountSuspended}
	ctx := context.Background()

	cases := []LoginRequest{
		{Identifier: aliceLogin, Password: "wrong-password-1"},
		{Identifier: "nobody@example.com", Password: alicePassword},
		{Identifier: "bob@example.com", Password: alicePassword},
	}
	for _, req := range cases {
		if _, err := env.engine.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", req.Identifier, err)
		}
	}
}

func TestLoginWithoutCredentialFails(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.login(alicePassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRecordsEveryAttempt(t *testing.T) {
	env := newTestEnv(t)
	env.setInitialPassword(t)
	ctx := context.Background()

	_, _ = env.login("wrong-password-1")
	_, _ = env.login("wrong-password-2")
	if _, err := env.login(alicePassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// a success never erases earlier failures
	n, err := env.engine.CountFailuresForAccount(ctx, aliceID, testEpoch.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountFailuresForAccount: %v", err)
	}
	if n != 2 {
		t.Fatalf("failures = %d, want 2", n)
	}
	n, err = env.engine.CountFailuresForAddress(ctx, "198.51.100.4", testEpoch.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountFailuresForAddress: %v", err)
	}
	if n != 2 {
		t.Fatalf("address failures = %d, want 2", n)
	}
}

func TestLoginLockoutScenario(t *testing.T) {
	env := newTestEnv(t)
	env.setInitialPassword(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := env.login("wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		env.clock.Advance(time.Minute)
	}
	if locked, _ := env.engine.IsLocked(ctx, aliceID); locked {
		t.Fatal("four failures must not lock")
	}

	if _, err := env.login("wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("fifth failure: %v", err)
	}
	lockedAt := env.clock.Now()
	l, locked, err := env.engine.ActiveLockout(ctx, aliceID)
	if err != nil || !locked {
		t.Fatalf("expected active lockout, locked=%v err=%v", locked, err)
	}
	if l.End == nil || !l.End.Equal(lockedAt.Add(30*time.Minute)) {
		t.Fatalf("lockout end = %v, want %v", l.End, lockedAt.Add(30*time.Minute))
	}

	// correct password is refused while locked
	if _, err := env.login(alicePassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	env.clock.Advance(30*time.Minute - time.Second)
	if locked, _ := env.engine.IsLocked(ctx, aliceID); !locked {
		t.Fatal("lockout ended early")
	}
	env.clock.Advance(time.Second)
	if locked, _ := env.engine.IsLocked(ctx, aliceID); locked {
		t.Fatal("lockout outlived its end")
	}
	if _, err := env.login(alicePassword); err != nil {
		t.Fatalf("login after lockout: %v", err)
	}
}

func TestLoginHidesLockedState(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Lockout.RevealLockedState = false })
	env.setInitialPassword(t)
	if _, err := env.engine.LockAccount(context.Background(), aliceID, time.Hour); err != nil {
		t.Fatalf("LockAccount: %v", err)
	}
	if _, err := env.login(alicePassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginEscalatesToPermanentAndSuspends(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Lockout.SuspendOnPermanent = true })
	env.setInitialPassword(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.login("wrong-password")
	}
	// failures while locked still count toward escalation
	for i := 0; i < 5; i++ {
		_, _ = env.login("wrong-password")
	}
	d, err := env.engine.EvaluateAfterFailure(ctx, aliceID)
	if err != nil {
		t.Fatalf("EvaluateAfterFailure: %v", err)
	}
	if d.Lockout == nil || d.Lockout.Kind() != store.LockoutPermanent {
		t.Fatalf("expected permanent lockout, got %+v", d)
	}
	changes := env.identity.statusChanges()
	if len(changes) != 1 || changes[0].status != AccountLocked {
		t.Fatalf("status changes = %+v", changes)
	}

	if err := env.engine.ClearLockout(ctx, aliceID); !errors.Is(err, ErrPermanentLockout) {
		t.Fatalf("expected ErrPermanentLockout, got %v", err)
	}
	if err := env.engine.UnlockAccount(ctx, aliceID); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if locked, _ := env.engine.IsLocked(ctx, aliceID); locked {
		t.Fatal("account still locked after unlock")
	}
	changes = env.identity.statusChanges()
	if len(changes) != 2 || changes[1].status != AccountActive {
		t.Fatalf("status changes after unlock = %+v", changes)
	}
}

func TestLoginIdentityFailure(t *testing.T) {
	env := newTestEnv(t)
	env.identity.resolveErr = errors.New("directory down")
	if _, err := env.login(alicePassword); !errors.Is(err, ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

func TestLoginUsesContextMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.setInitialPassword(t)
	ctx := WithUserAgent(WithSourceAddress(context.Background(), "192.0.2.55"), "ctx-agent")

	res, err := env.engine.Login(ctx, LoginRequest{Identifier: aliceLogin, Password: alicePassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Session.Session.SourceAddress != "192.0.2.55" || res.Session.Session.UserAgent != "ctx-agent" {
		t.Fatalf("context metadata not applied: %+v", res.Session.Session)
	}
}

func TestLoginMetrics(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.EnableLatencyHistograms = true
	})
	env.setInitialPassword(t)

	_, _ = env.login("wrong-password")
	if _, err := env.login(alicePassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("counters = %v", snap.Counters)
	}
	var total uint64
	for _, v := range snap.Histograms[MetricLoginLatency] {
		total += v
	}
	if total != 2 {
		t.Fatalf("latency samples = %d, want 2", total)
	}
}
