package memory

import (
	"context"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

type credential struct {
	current string
	// history is ordered oldest first.
	history []store.PasswordHistoryEntry
}

// CredentialStore keeps the live hash and history of each account under the
// account's shard lock, so SetPassword is a single atomic step.
type CredentialStore struct {
	byAccount *shards[credential]
}

var _ store.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{byAccount: newShards[credential]()}
}

func (s *CredentialStore) CurrentHash(_ context.Context, accountID string) (string, bool, error) {
	var (
		hash  string
		found bool
	)
	s.byAccount.with(accountID, func(c credential, ok bool) (credential, bool) {
		hash, found = c.current, ok && c.current != ""
		return c, ok
	})
	return hash, found, nil
}

func (s *CredentialStore) SetPassword(_ context.Context, accountID, hash string, at time.Time) error {
	s.byAccount.with(accountID, func(c credential, _ bool) (credential, bool) {
		c.current = hash
		c.history = append(c.history, store.PasswordHistoryEntry{AccountID: accountID, PasswordHash: hash, CreatedAt: at})
		return c, true
	})
	return nil
}

func (s *CredentialStore) History(_ context.Context, accountID string, limit int) ([]store.PasswordHistoryEntry, error) {
	var out []store.PasswordHistoryEntry
	s.byAccount.with(accountID, func(c credential, ok bool) (credential, bool) {
		n := len(c.history)
		if limit > 0 && limit < n {
			n = limit
		}
		out = make([]store.PasswordHistoryEntry, 0, n)
		for i := len(c.history) - 1; i >= 0 && len(out) < n; i-- {
			out = append(out, c.history[i])
		}
		return c, ok
	})
	return out, nil
}

func (s *CredentialStore) PruneHistory(_ context.Context, accountID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	removed := 0
	s.byAccount.with(accountID, func(c credential, ok bool) (credential, bool) {
		if !ok {
			return c, false
		}
		cutoff := len(c.history) - keep
		kept := make([]store.PasswordHistoryEntry, 0, len(c.history))
		for i, e := range c.history {
			if i < cutoff && e.PasswordHash != c.current {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		c.history = kept
		return c, true
	})
	return removed, nil
}
