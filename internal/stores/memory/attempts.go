package memory

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

// AttemptStore keeps attempts indexed by account and by source address.
// Attempts carrying neither are kept in unindexed, keyed by identifier, so
// every appended attempt is retained until purged.
type AttemptStore struct {
	byAccount *shards[[]store.LoginAttempt]
	byAddress *shards[[]store.LoginAttempt]
	unindexed *shards[[]store.LoginAttempt]
}

var _ store.AttemptStore = (*AttemptStore)(nil)

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		byAccount: newShards[[]store.LoginAttempt](),
		byAddress: newShards[[]store.LoginAttempt](),
		unindexed: newShards[[]store.LoginAttempt](),
	}
}

func appendAttempt(a store.LoginAttempt) func([]store.LoginAttempt, bool) ([]store.LoginAttempt, bool) {
	return func(cur []store.LoginAttempt, _ bool) ([]store.LoginAttempt, bool) {
		return append(cur, a), true
	}
}

func (s *AttemptStore) Append(_ context.Context, a store.LoginAttempt) error {
	if a.AccountID != "" {
		s.byAccount.with(a.AccountID, appendAttempt(a))
	}
	if a.SourceAddress != "" {
		s.byAddress.with(a.SourceAddress, appendAttempt(a))
	}
	if a.AccountID == "" && a.SourceAddress == "" {
		s.unindexed.with(a.Identifier, appendAttempt(a))
	}
	return nil
}

func failuresSince(list []store.LoginAttempt, since time.Time) []store.LoginAttempt {
	var out []store.LoginAttempt
	for _, a := range list {
		if a.Failed() && !a.OccurredAt.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

func (s *AttemptStore) collect(idx *shards[[]store.LoginAttempt], key string, since time.Time) []store.LoginAttempt {
	var out []store.LoginAttempt
	idx.with(key, func(cur []store.LoginAttempt, ok bool) ([]store.LoginAttempt, bool) {
		out = failuresSince(cur, since)
		return cur, ok
	})
	return out
}

func (s *AttemptStore) CountAccountFailures(_ context.Context, accountID string, since time.Time) (int, error) {
	return len(s.collect(s.byAccount, accountID, since)), nil
}

func (s *AttemptStore) CountAddressFailures(_ context.Context, addr string, since time.Time) (int, error) {
	return len(s.collect(s.byAddress, addr, since)), nil
}

func (s *AttemptStore) RecentAccountFailures(_ context.Context, accountID string, since time.Time) ([]store.LoginAttempt, error) {
	out := s.collect(s.byAccount, accountID, since)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

// PurgeBefore reports how many distinct attempts were removed.
func (s *AttemptStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	removed := make(map[string]struct{})
	prune := func(_ string, list []store.LoginAttempt) ([]store.LoginAttempt, bool) {
		kept := list[:0]
		for _, a := range list {
			if a.OccurredAt.Before(cutoff) {
				removed[a.ID] = struct{}{}
				continue
			}
			kept = append(kept, a)
		}
		return kept, len(kept) > 0
	}
	s.byAccount.each(prune)
	s.byAddress.each(prune)
	s.unindexed.each(prune)
	return int64(len(removed)), nil
}
