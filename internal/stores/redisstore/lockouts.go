package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/internal/policy"
	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// LockoutStore keeps each account's lockout history in one record at
// {prefix}:lock:{accountID}. Writes WATCH that key, so concurrent
// CreateOrExtend calls for an account serialize and at most one active
// lockout exists. {prefix}:lock:accounts lists accounts with history.
type LockoutStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.LockoutStore = (*LockoutStore)(nil)

func NewLockoutStore(client redis.UniversalClient, prefix string) *LockoutStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &LockoutStore{redis: client, prefix: prefix}
}

func (s *LockoutStore) key(accountID string) string {
	return s.prefix + ":lock:" + accountID
}

func (s *LockoutStore) accountsKey() string {
	return s.prefix + ":lock:accounts"
}

func activeIndex(list []store.Lockout, now time.Time) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Active(now) {
			return i
		}
	}
	return -1
}

func (s *LockoutStore) load(ctx context.Context, c getter, accountID string) ([]store.Lockout, error) {
	data, err := c.Get(ctx, s.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeLockouts(data)
}

// update runs fn against the account's history under WATCH. fn returns the
// list to persist and whether anything changed.
func (s *LockoutStore) update(ctx context.Context, accountID string, fn func([]store.Lockout) ([]store.Lockout, bool)) error {
	key := s.key(accountID)
	err := watch(ctx, s.redis, func(tx *redis.Tx) error {
		list, err := s.load(ctx, tx, accountID)
		if err != nil {
			return err
		}
		next, changed := fn(list)
		if !changed {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.accountsKey(), accountID)
				return nil
			}
			encoded, err := encodeLockouts(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, s.accountsKey(), accountID)
			return nil
		})
		return err
	}, key)
	return wrap(err)
}

func (s *LockoutStore) CreateOrExtend(ctx context.Context, accountID string, now time.Time, p store.LockoutProposal) (store.Lockout, bool, error) {
	var (
		out     store.Lockout
		created bool
	)
	err := s.update(ctx, accountID, func(list []store.Lockout) ([]store.Lockout, bool) {
		created = false
		if i := activeIndex(list, now); i >= 0 {
			list[i] = policy.Merge(list[i], p)
			out = list[i]
			return list, true
		}
		out = policy.NewLockout(tokens.NewID(), accountID, now, p)
		created = true
		return append(list, out), true
	})
	if err != nil {
		return store.Lockout{}, false, err
	}
	return out, created, nil
}

func (s *LockoutStore) Active(ctx context.Context, accountID string, now time.Time) (store.Lockout, bool, error) {
	list, err := s.load(ctx, s.redis, accountID)
	if err != nil {
		return store.Lockout{}, false, wrap(err)
	}
	if i := activeIndex(list, now); i >= 0 {
		return list[i], true, nil
	}
	return store.Lockout{}, false, nil
}

func (s *LockoutStore) EndActive(ctx context.Context, accountID string, now time.Time, includePermanent bool) (store.Lockout, bool, error) {
	var (
		out   store.Lockout
		ended bool
	)
	err := s.update(ctx, accountID, func(list []store.Lockout) ([]store.Lockout, bool) {
		out, ended = store.Lockout{}, false
		i := activeIndex(list, now)
		if i < 0 {
			return list, false
		}
		at := now
		switch {
		case includePermanent:
			list[i].UnlockedAt = &at
		case list[i].End != nil:
			list[i].End = &at
		default:
			out = list[i]
			return list, false
		}
		out, ended = list[i], true
		return list, true
	})
	if err != nil {
		return store.Lockout{}, false, err
	}
	return out, ended, nil
}

func (s *LockoutStore) PurgeEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	accounts, err := s.redis.SMembers(ctx, s.accountsKey()).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	var purged int64
	for _, accountID := range accounts {
		var n int64
		err := s.update(ctx, accountID, func(list []store.Lockout) ([]store.Lockout, bool) {
			n = 0
			kept := make([]store.Lockout, 0, len(list))
			for _, l := range list {
				if l.EndedBefore(cutoff) {
					n++
					continue
				}
				kept = append(kept, l)
			}
			return kept, n > 0 || len(list) == 0
		})
		if err != nil {
			return purged, err
		}
		purged += n
	}
	return purged, nil
}

func encodeLockouts(list []store.Lockout) ([]byte, error) {
	e := newEncoder()
	e.i64(int64(len(list)))
	for _, l := range list {
		e.u8(uint8(l.Reason))
		e.i64(int64(l.FailedAttemptCount))
		e.time(l.Start)
		e.optTime(l.End)
		e.optTime(l.UnlockedAt)
		e.str(l.ID)
		e.str(l.AccountID)
	}
	return e.bytes()
}

func decodeLockouts(data []byte) ([]store.Lockout, error) {
	d := newDecoder(data)
	n := int(d.i64())
	if n < 0 || n > len(data) {
		return nil, errBadRecord
	}
	list := make([]store.Lockout, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		list = append(list, store.Lockout{
			Reason:             store.LockoutReason(d.u8()),
			FailedAttemptCount: int(d.i64()),
			Start:              d.time(),
			End:                d.optTime(),
			UnlockedAt:         d.optTime(),
			ID:                 d.str(),
			AccountID:          d.str(),
		})
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return list, nil
}
