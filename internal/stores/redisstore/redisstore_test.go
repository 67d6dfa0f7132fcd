package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func failure(id, account, addr string, at time.Time) store.LoginAttempt {
	return store.LoginAttempt{
		ID:            id,
		AccountID:     account,
		Identifier:    account + "@example.com",
		SourceAddress: addr,
		OccurredAt:    at,
		Outcome:       store.OutcomeFailure,
		FailureReason: store.FailureBadPassword,
	}
}

func TestAttemptStoreCountsAndRecent(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewAttemptStore(rdb, "t")
	ctx := context.Background()

	attempts := []store.LoginAttempt{
		failure("a1", "acct-1", "10.0.0.1", t0),
		failure("a2", "acct-1", "10.0.0.1", t0.Add(time.Minute)),
		failure("a3", "acct-1", "10.0.0.2", t0.Add(2*time.Minute)),
		failure("a4", "acct-2", "10.0.0.1", t0.Add(3*time.Minute)),
		{ID: "a5", AccountID: "acct-1", OccurredAt: t0.Add(4 * time.Minute), Outcome: store.OutcomeSuccess},
	}
	for _, a := range attempts {
		if err := s.Append(ctx, a); err != nil {
			t.Fatalf("append %s: %v", a.ID, err)
		}
	}

	n, err := s.CountAccountFailures(ctx, "acct-1", t0)
	if err != nil || n != 3 {
		t.Fatalf("account failures = %d, %v; want 3", n, err)
	}
	n, err = s.CountAccountFailures(ctx, "acct-1", t0.Add(time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("account failures since +1m = %d, %v; want 2", n, err)
	}
	n, err = s.CountAddressFailures(ctx, "10.0.0.1", t0)
	if err != nil || n != 3 {
		t.Fatalf("address failures = %d, %v; want 3", n, err)
	}

	recent, err := s.RecentAccountFailures(ctx, "acct-1", t0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "a3" || recent[2].ID != "a1" {
		t.Fatalf("recent order = %+v", recent)
	}
	if recent[0].SourceAddress != "10.0.0.2" || !recent[0].OccurredAt.Equal(t0.Add(2*time.Minute)) {
		t.Fatalf("recent[0] did not round-trip: %+v", recent[0])
	}
}

func TestAttemptStorePurgeBefore(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewAttemptStore(rdb, "t")
	ctx := context.Background()

	for i, at := range []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)} {
		a := failure(tokens.NewID(), "acct-1", "10.0.0.1", at)
		if i == 2 {
			a.Outcome, a.FailureReason = store.OutcomeSuccess, store.FailureNone
		}
		if err := s.Append(ctx, a); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	purged, err := s.PurgeBefore(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	n, _ := s.CountAccountFailures(ctx, "acct-1", time.Time{})
	if n != 1 {
		t.Fatalf("remaining failures = %d, want 1", n)
	}
	if left := rdb.HLen(ctx, s.dataKey()).Val(); left != 2 {
		t.Fatalf("remaining records = %d, want 2", left)
	}
}

func TestLockoutStoreConcurrentCreateOrExtend(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewLockoutStore(rdb, "t")
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			end := t0.Add(time.Duration(30+i) * time.Minute)
			p := store.LockoutProposal{End: &end, FailedAttemptCount: 5 + i, Reason: store.ReasonFailedAttempts}
			for {
				_, c, err := s.CreateOrExtend(ctx, "acct-1", t0, p)
				if errors.Is(err, store.ErrConflict) {
					continue
				}
				if err != nil {
					t.Errorf("create or extend: %v", err)
					return
				}
				if c {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return
			}
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}
	l, ok, err := s.Active(ctx, "acct-1", t0)
	if err != nil || !ok {
		t.Fatalf("active = %v, %v", ok, err)
	}
	if !l.End.Equal(t0.Add(37*time.Minute)) || l.FailedAttemptCount != 12 {
		t.Fatalf("merged lockout = end %v count %d", l.End, l.FailedAttemptCount)
	}
}

func TestLockoutStorePermanentAndEndActive(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewLockoutStore(rdb, "t")
	ctx := context.Background()

	end := t0.Add(30 * time.Minute)
	if _, _, err := s.CreateOrExtend(ctx, "acct-1", t0, store.LockoutProposal{End: &end, FailedAttemptCount: 5, Reason: store.ReasonFailedAttempts}); err != nil {
		t.Fatalf("create: %v", err)
	}
	l, created, err := s.CreateOrExtend(ctx, "acct-1", t0.Add(time.Minute), store.LockoutProposal{FailedAttemptCount: 10, Reason: store.ReasonFailedAttempts})
	if err != nil || created {
		t.Fatalf("escalate = created %v, %v", created, err)
	}
	if l.Kind() != store.LockoutPermanent {
		t.Fatalf("kind = %v, want permanent", l.Kind())
	}

	l, ended, err := s.EndActive(ctx, "acct-1", t0.Add(2*time.Minute), false)
	if err != nil || ended {
		t.Fatalf("end without permanent = %v, %v", ended, err)
	}
	if l.ID == "" {
		t.Fatalf("expected the permanent lockout to be returned")
	}

	_, ended, err = s.EndActive(ctx, "acct-1", t0.Add(2*time.Minute), true)
	if err != nil || !ended {
		t.Fatalf("end with permanent = %v, %v", ended, err)
	}
	if _, ok, _ := s.Active(ctx, "acct-1", t0.Add(3*time.Minute)); ok {
		t.Fatalf("lockout still active after unlock")
	}

	purged, err := s.PurgeEndedBefore(ctx, t0.Add(time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("purge = %d, %v; want 1", purged, err)
	}
	if rdb.Exists(ctx, s.key("acct-1")).Val() != 0 {
		t.Fatalf("empty history key not removed")
	}
}

func TestLockoutStoreEndTemporary(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewLockoutStore(rdb, "t")
	ctx := context.Background()

	end := t0.Add(30 * time.Minute)
	if _, _, err := s.CreateOrExtend(ctx, "acct-1", t0, store.LockoutProposal{End: &end, FailedAttemptCount: 5}); err != nil {
		t.Fatalf("create: %v", err)
	}
	l, ended, err := s.EndActive(ctx, "acct-1", t0.Add(time.Minute), false)
	if err != nil || !ended {
		t.Fatalf("end = %v, %v", ended, err)
	}
	if !l.End.Equal(t0.Add(time.Minute)) {
		t.Fatalf("end = %v", l.End)
	}
	if _, ok, _ := s.Active(ctx, "acct-1", t0.Add(time.Minute)); ok {
		t.Fatalf("lockout still active")
	}
}

func resetToken(t *testing.T, account string, expires time.Time) (store.PasswordResetToken, store.TokenHash) {
	t.Helper()
	_, hash, err := tokens.New()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return store.PasswordResetToken{
		ID:        tokens.NewID(),
		AccountID: account,
		TokenHash: hash,
		CreatedAt: t0,
		ExpiresAt: expires,
	}, hash
}

func TestResetTokenStoreSingleRedeemUnderConcurrency(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewResetTokenStore(rdb, "t")
	ctx := context.Background()

	tok, hash := resetToken(t, "acct-1", t0.Add(time.Hour))
	if err := s.Create(ctx, tok); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, tok); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate create = %v", err)
	}

	const workers = 8
	outcomes := make(chan store.RedeemOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, o, err := s.Redeem(ctx, hash, t0.Add(time.Minute))
				if errors.Is(err, store.ErrConflict) {
					continue
				}
				if err != nil {
					t.Errorf("redeem: %v", err)
					return
				}
				outcomes <- o
				return
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	ok := 0
	for o := range outcomes {
		switch o {
		case store.RedeemOK:
			ok++
		case store.RedeemAlreadyUsed:
		default:
			t.Fatalf("unexpected outcome %v", o)
		}
	}
	if ok != 1 {
		t.Fatalf("successful redeems = %d, want 1", ok)
	}
}

func TestResetTokenStoreOutcomes(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewResetTokenStore(rdb, "t")
	ctx := context.Background()

	var missing store.TokenHash
	if _, o, err := s.Redeem(ctx, missing, t0); err != nil || o != store.RedeemNotFound {
		t.Fatalf("missing = %v, %v", o, err)
	}

	tok, hash := resetToken(t, "acct-1", t0.Add(time.Hour))
	if err := s.Create(ctx, tok); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, o, _ := s.Redeem(ctx, hash, t0.Add(time.Hour)); o != store.RedeemExpired {
		t.Fatalf("at expiry = %v, want expired", o)
	}

	other, otherHash := resetToken(t, "acct-1", t0.Add(time.Hour))
	if err := s.Create(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := s.InvalidateAccount(ctx, "acct-1", t0)
	if err != nil || n != 2 {
		t.Fatalf("invalidate = %d, %v; want 2", n, err)
	}
	if _, o, _ := s.Redeem(ctx, otherHash, t0); o != store.RedeemAlreadyUsed {
		t.Fatalf("after invalidate = %v", o)
	}

	purged, err := s.PurgeExpiredBefore(ctx, t0.Add(2*time.Hour))
	if err != nil || purged != 2 {
		t.Fatalf("purge = %d, %v; want 2", purged, err)
	}
	if _, o, _ := s.Redeem(ctx, hash, t0); o != store.RedeemNotFound {
		t.Fatalf("after purge = %v", o)
	}
}

func TestInvitationStoreLifecycle(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewInvitationStore(rdb, "t")
	ctx := context.Background()

	_, hash, _ := tokens.New()
	inv := store.Invitation{
		ID:        "inv-1",
		AccountID: "acct-1",
		TokenHash: hash,
		Status:    store.InvitationPending,
		CreatedAt: t0,
		ExpiresAt: t0.Add(24 * time.Hour),
	}
	if err := s.Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Transition(ctx, "inv-1", store.InvitationSent, t0.Add(time.Minute))
	if err != nil || got.Status != store.InvitationSent || got.SentAt == nil {
		t.Fatalf("send = %+v, %v", got, err)
	}
	got, err = s.Resend(ctx, "inv-1", t0.Add(2*time.Minute))
	if err != nil || got.ResendCount != 1 {
		t.Fatalf("resend = %+v, %v", got, err)
	}
	if _, err := s.Transition(ctx, "nope", store.InvitationSent, t0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing transition = %v", err)
	}

	got, o, err := s.Accept(ctx, hash, t0.Add(time.Hour))
	if err != nil || o != store.RedeemOK || got.AcceptedAt == nil {
		t.Fatalf("accept = %+v %v %v", got, o, err)
	}
	if _, o, _ := s.Accept(ctx, hash, t0.Add(time.Hour)); o != store.RedeemAlreadyUsed {
		t.Fatalf("second accept = %v", o)
	}
	if _, err := s.Resend(ctx, "inv-1", t0); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("resend accepted = %v", err)
	}

	stored, ok, err := s.Get(ctx, "inv-1")
	if err != nil || !ok || stored.Status != store.InvitationAccepted {
		t.Fatalf("get = %+v %v %v", stored, ok, err)
	}
}

func TestInvitationStoreExpiry(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewInvitationStore(rdb, "t")
	ctx := context.Background()

	for i, id := range []string{"inv-1", "inv-2"} {
		_, hash, _ := tokens.New()
		err := s.Create(ctx, store.Invitation{
			ID:        id,
			AccountID: "acct-1",
			TokenHash: hash,
			Status:    store.InvitationPending,
			CreatedAt: t0,
			ExpiresAt: t0.Add(time.Duration(i+1) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	expired, err := s.FindExpired(ctx, t0.Add(time.Hour))
	if err != nil || len(expired) != 1 || expired[0].ID != "inv-1" {
		t.Fatalf("expired = %+v, %v", expired, err)
	}
	if _, err := s.Transition(ctx, "inv-1", store.InvitationExpired, t0.Add(time.Hour)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	expired, _ = s.FindExpired(ctx, t0.Add(time.Hour))
	if len(expired) != 0 {
		t.Fatalf("expired after transition = %+v", expired)
	}

	inv, _, _ := s.Get(ctx, "inv-2")
	if _, o, _ := s.Accept(ctx, inv.TokenHash, t0.Add(3*time.Hour)); o != store.RedeemExpired {
		t.Fatalf("late accept = %v, want expired", o)
	}
}

func TestStoresReportUnavailable(t *testing.T) {
	rdb, mr := newTestRedis(t)
	mr.Close()
	ctx := context.Background()

	if err := NewAttemptStore(rdb, "t").Append(ctx, failure("a1", "acct-1", "", t0)); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("append = %v, want ErrUnavailable", err)
	}
	if _, _, err := NewLockoutStore(rdb, "t").Active(ctx, "acct-1", t0); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("active = %v, want ErrUnavailable", err)
	}
}

func TestDecodeRejectsTruncatedRecords(t *testing.T) {
	tok, _ := resetToken(t, "acct-1", t0)
	data, err := encodeResetToken(tok)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodeResetToken(data[:len(data)-1]); !errors.Is(err, errBadRecord) {
		t.Fatalf("truncated = %v", err)
	}
	data[0] = 9
	if _, err := decodeResetToken(data); !errors.Is(err, errBadRecord) {
		t.Fatalf("bad version = %v", err)
	}
}
