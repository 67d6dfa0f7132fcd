package memory

import (
	"context"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

// ResetTokenStore holds reset tokens keyed by token hash, with a per-account
// index of hashes. Lock order is account index, then token.
type ResetTokenStore struct {
	byHash    *shards[store.PasswordResetToken]
	byAccount *shards[[]store.TokenHash]
}

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

func NewResetTokenStore() *ResetTokenStore {
	return &ResetTokenStore{
		byHash:    newShards[store.PasswordResetToken](),
		byAccount: newShards[[]store.TokenHash](),
	}
}

func tokenKey(h store.TokenHash) string {
	return string(h[:])
}

func (s *ResetTokenStore) Create(_ context.Context, t store.PasswordResetToken) error {
	var err error
	s.byAccount.with(t.AccountID, func(hashes []store.TokenHash, ok bool) ([]store.TokenHash, bool) {
		s.byHash.with(tokenKey(t.TokenHash), func(cur store.PasswordResetToken, exists bool) (store.PasswordResetToken, bool) {
			if exists {
				err = store.ErrDuplicate
				return cur, true
			}
			return cloneResetToken(t), true
		})
		if err != nil {
			return hashes, ok
		}
		return append(hashes, t.TokenHash), true
	})
	return err
}

func cloneResetToken(t store.PasswordResetToken) store.PasswordResetToken {
	t.UsedAt = cloneTime(t.UsedAt)
	return t
}

func (s *ResetTokenStore) Redeem(_ context.Context, hash store.TokenHash, now time.Time) (store.PasswordResetToken, store.RedeemOutcome, error) {
	var (
		out     store.PasswordResetToken
		outcome store.RedeemOutcome
	)
	s.byHash.with(tokenKey(hash), func(t store.PasswordResetToken, ok bool) (store.PasswordResetToken, bool) {
		switch {
		case !ok:
			outcome = store.RedeemNotFound
			return t, false
		case t.UsedAt != nil:
			out, outcome = cloneResetToken(t), store.RedeemAlreadyUsed
			return t, true
		case !now.Before(t.ExpiresAt):
			out, outcome = cloneResetToken(t), store.RedeemExpired
			return t, true
		}
		used := now
		t.UsedAt = &used
		out, outcome = cloneResetToken(t), store.RedeemOK
		return t, true
	})
	return out, outcome, nil
}

// InvalidateAccount visits only the account's own tokens.
func (s *ResetTokenStore) InvalidateAccount(_ context.Context, accountID string, now time.Time) (int, error) {
	n := 0
	s.byAccount.with(accountID, func(hashes []store.TokenHash, ok bool) ([]store.TokenHash, bool) {
		live := hashes[:0]
		for _, h := range hashes {
			found := false
			s.byHash.with(tokenKey(h), func(t store.PasswordResetToken, exists bool) (store.PasswordResetToken, bool) {
				if !exists {
					return t, false
				}
				found = true
				if t.UsedAt == nil {
					used := now
					t.UsedAt = &used
					n++
				}
				return t, true
			})
			if found {
				live = append(live, h)
			}
		}
		return live, len(live) > 0
	})
	return n, nil
}

func (s *ResetTokenStore) PurgeExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	purged := make(map[string][]store.TokenHash)
	var n int64
	s.byHash.each(func(_ string, t store.PasswordResetToken) (store.PasswordResetToken, bool) {
		if t.ExpiresAt.Before(cutoff) {
			purged[t.AccountID] = append(purged[t.AccountID], t.TokenHash)
			n++
			return t, false
		}
		return t, true
	})
	// index cleanup runs after the token shards are released
	for accountID, gone := range purged {
		drop := make(map[store.TokenHash]struct{}, len(gone))
		for _, h := range gone {
			drop[h] = struct{}{}
		}
		s.byAccount.with(accountID, func(hashes []store.TokenHash, ok bool) ([]store.TokenHash, bool) {
			kept := hashes[:0]
			for _, h := range hashes {
				if _, d := drop[h]; !d {
					kept = append(kept, h)
				}
			}
			return kept, len(kept) > 0
		})
	}
	return n, nil
}
