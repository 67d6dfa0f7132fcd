package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/store"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewStore(rdb, "as")
	return s, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestCreateRejectsDuplicateTokenHash(t *testing.T) {
	s, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := s.Create(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, testSession("sid-2")); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate token hash: got %v", err)
	}
	dup := testSession("sid-1")
	dup.TokenHash = store.TokenHash{9}
	if err := s.Create(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate id: got %v", err)
	}

	got, ok, err := s.GetByTokenHash(ctx, store.TokenHash{1, 2, 3})
	if err != nil || !ok || got.ID != "sid-1" {
		t.Fatalf("lookup = %+v %v %v", got, ok, err)
	}
}

func TestDeleteSessionIdempotentAndIndex(t *testing.T) {
	s, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession("sid-1")

	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	if _, ok, _ := s.GetByTokenHash(ctx, sess.TokenHash); ok {
		t.Fatalf("token index still resolves")
	}
	members, err := rdb.SMembers(ctx, s.accountKey(sess.AccountID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("account index not cleaned: %v", members)
	}
	if n := rdb.ZCard(ctx, s.expiryKey()).Val(); n != 0 {
		t.Fatalf("expiry index not cleaned: %d", n)
	}
}

func TestDeleteByAccountKeepsListed(t *testing.T) {
	s, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess := testSession(fmt.Sprintf("sid-%d", i))
		sess.TokenHash = store.TokenHash{byte(i + 1)}
		sess.CreatedAt = sess.CreatedAt.Add(time.Duration(i) * time.Minute)
		if err := s.Create(ctx, sess); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := s.DeleteByAccount(ctx, "acct-1", "sid-1")
	if err != nil || n != 2 {
		t.Fatalf("delete by account = %d, %v; want 2", n, err)
	}
	list, err := s.ListByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "sid-1" {
		t.Fatalf("remaining = %+v", list)
	}
}

func TestUpdateExpiryAndPurge(t *testing.T) {
	s, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession("sid-1")
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := s.UpdateExpiry(ctx, "missing", sess.ExpiresAt)
	if err != nil || found {
		t.Fatalf("update missing = %v, %v", found, err)
	}

	later := sess.ExpiresAt.Add(time.Hour)
	found, err = s.UpdateExpiry(ctx, sess.ID, later)
	if err != nil || !found {
		t.Fatalf("update = %v, %v", found, err)
	}

	purged, err := s.PurgeExpired(ctx, sess.ExpiresAt)
	if err != nil || purged != 0 {
		t.Fatalf("purge before extended expiry = %d, %v", purged, err)
	}
	purged, err = s.PurgeExpired(ctx, later)
	if err != nil || purged != 1 {
		t.Fatalf("purge at expiry = %d, %v", purged, err)
	}
	if _, ok, _ := s.Get(ctx, sess.ID); ok {
		t.Fatalf("session survived purge")
	}
}

func TestListRepairsStaleIndexEntries(t *testing.T) {
	s, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession("sid-1")
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := rdb.SAdd(ctx, s.accountKey(sess.AccountID), "ghost").Err(); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	list, err := s.ListByAccount(ctx, sess.AccountID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if rdb.SIsMember(ctx, s.accountKey(sess.AccountID), "ghost").Val() {
		t.Fatalf("stale entry not removed")
	}
}

func TestConcurrentDeleteCountsOnce(t *testing.T) {
	s, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	const sessionsN = 12
	for i := 0; i < sessionsN; i++ {
		sess := testSession(fmt.Sprintf("sid-%d", i))
		sess.TokenHash = store.TokenHash{byte(i + 1)}
		if err := s.Create(ctx, sess); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.DeleteByAccount(ctx, "acct-1")
			if err != nil {
				t.Errorf("delete by account: %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != sessionsN {
		t.Fatalf("removed total = %d, want %d", total, sessionsN)
	}
}

func TestStoreReportsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewStore(rdb, "as")
	mr.Close()

	if _, _, err := s.Get(context.Background(), "sid-1"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
