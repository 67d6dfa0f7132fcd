package memory

import (
	"context"
	"time"

	"github.com/MrEthical07/accountsec/internal/policy"
	"github.com/MrEthical07/accountsec/internal/tokens"
	"github.com/MrEthical07/accountsec/store"
)

// LockoutStore keeps the full lockout history of each account. The shard lock
// of an account serializes CreateOrExtend for it.
type LockoutStore struct {
	byAccount *shards[[]store.Lockout]
}

var _ store.LockoutStore = (*LockoutStore)(nil)

func NewLockoutStore() *LockoutStore {
	return &LockoutStore{byAccount: newShards[[]store.Lockout]()}
}

func activeIndex(list []store.Lockout, now time.Time) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Active(now) {
			return i
		}
	}
	return -1
}

func cloneLockout(l store.Lockout) store.Lockout {
	l.End = cloneTime(l.End)
	l.UnlockedAt = cloneTime(l.UnlockedAt)
	return l
}

func (s *LockoutStore) CreateOrExtend(_ context.Context, accountID string, now time.Time, p store.LockoutProposal) (store.Lockout, bool, error) {
	var (
		out     store.Lockout
		created bool
	)
	s.byAccount.with(accountID, func(list []store.Lockout, _ bool) ([]store.Lockout, bool) {
		if i := activeIndex(list, now); i >= 0 {
			list[i] = policy.Merge(list[i], p)
			out = cloneLockout(list[i])
			return list, true
		}
		l := policy.NewLockout(tokens.NewID(), accountID, now, p)
		created = true
		out = cloneLockout(l)
		return append(list, l), true
	})
	return out, created, nil
}

func (s *LockoutStore) Active(_ context.Context, accountID string, now time.Time) (store.Lockout, bool, error) {
	var (
		out   store.Lockout
		found bool
	)
	s.byAccount.with(accountID, func(list []store.Lockout, ok bool) ([]store.Lockout, bool) {
		if i := activeIndex(list, now); i >= 0 {
			out, found = cloneLockout(list[i]), true
		}
		return list, ok
	})
	return out, found, nil
}

func (s *LockoutStore) EndActive(_ context.Context, accountID string, now time.Time, includePermanent bool) (store.Lockout, bool, error) {
	var (
		out   store.Lockout
		ended bool
	)
	s.byAccount.with(accountID, func(list []store.Lockout, ok bool) ([]store.Lockout, bool) {
		i := activeIndex(list, now)
		if i < 0 {
			return list, ok
		}
		l := list[i]
		switch {
		case includePermanent:
			at := now
			l.UnlockedAt = &at
		case l.End != nil:
			end := now
			l.End = &end
		default:
			out = cloneLockout(l)
			return list, ok
		}
		list[i] = l
		out, ended = cloneLockout(l), true
		return list, ok
	})
	return out, ended, nil
}

func (s *LockoutStore) PurgeEndedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	s.byAccount.each(func(_ string, list []store.Lockout) ([]store.Lockout, bool) {
		kept := list[:0]
		for _, l := range list {
			if l.EndedBefore(cutoff) {
				n++
				continue
			}
			kept = append(kept, l)
		}
		return kept, len(kept) > 0
	})
	return n, nil
}
