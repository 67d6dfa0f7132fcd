package memory

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

// SessionStore indexes sessions by ID, token hash and account. Each index is
// striped; nested locks are always taken account, then token hash, then ID.
type SessionStore struct {
	byID      *shards[store.Session]
	byHash    *shards[string]
	byAccount *shards[map[string]struct{}]
}

var _ store.SessionStore = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:      newShards[store.Session](),
		byHash:    newShards[string](),
		byAccount: newShards[map[string]struct{}](),
	}
}

func (s *SessionStore) Create(_ context.Context, sess store.Session) error {
	var err error
	s.byAccount.with(sess.AccountID, func(ids map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		s.byHash.with(tokenKey(sess.TokenHash), func(cur string, exists bool) (string, bool) {
			if exists {
				err = store.ErrDuplicate
				return cur, true
			}
			s.byID.with(sess.ID, func(prev store.Session, taken bool) (store.Session, bool) {
				if taken {
					err = store.ErrDuplicate
					return prev, true
				}
				return sess, true
			})
			if err != nil {
				return cur, false
			}
			return sess.ID, true
		})
		if err != nil {
			return ids, ok
		}
		if ids == nil {
			ids = make(map[string]struct{})
		}
		ids[sess.ID] = struct{}{}
		return ids, true
	})
	return err
}

func (s *SessionStore) GetByTokenHash(ctx context.Context, hash store.TokenHash) (store.Session, bool, error) {
	var (
		id    string
		found bool
	)
	s.byHash.with(tokenKey(hash), func(cur string, ok bool) (string, bool) {
		id, found = cur, ok
		return cur, ok
	})
	if !found {
		return store.Session{}, false, nil
	}
	sess, ok, err := s.Get(ctx, id)
	if ok && sess.TokenHash != hash {
		return store.Session{}, false, err
	}
	return sess, ok, err
}

func (s *SessionStore) Get(_ context.Context, id string) (store.Session, bool, error) {
	var (
		out   store.Session
		found bool
	)
	s.byID.with(id, func(cur store.Session, ok bool) (store.Session, bool) {
		out, found = cur, ok
		return cur, ok
	})
	return out, found, nil
}

// removeLocked deletes id's record and hash entry. The caller holds the
// account shard.
func (s *SessionStore) removeLocked(id string, cond func(store.Session) bool) bool {
	var (
		removed bool
		hash    store.TokenHash
	)
	s.byID.with(id, func(cur store.Session, ok bool) (store.Session, bool) {
		if !ok || (cond != nil && !cond(cur)) {
			return cur, ok
		}
		removed, hash = true, cur.TokenHash
		return cur, false
	})
	if removed {
		s.byHash.with(tokenKey(hash), func(cur string, ok bool) (string, bool) {
			return cur, ok && cur != id
		})
	}
	return removed
}

// remove deletes one session when cond (nil = always) holds for it.
func (s *SessionStore) remove(id string, cond func(store.Session) bool) bool {
	sess, ok, _ := s.Get(context.Background(), id)
	if !ok {
		return false
	}
	removed := false
	s.byAccount.with(sess.AccountID, func(ids map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		removed = s.removeLocked(id, cond)
		if removed {
			delete(ids, id)
		}
		return ids, ok && len(ids) > 0
	})
	return removed
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.remove(id, nil)
	return nil
}

func (s *SessionStore) DeleteByAccount(_ context.Context, accountID string, keep ...string) (int, error) {
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}
	n := 0
	s.byAccount.with(accountID, func(ids map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		for id := range ids {
			if _, k := skip[id]; k {
				continue
			}
			if s.removeLocked(id, nil) {
				n++
			}
			delete(ids, id)
		}
		return ids, ok && len(ids) > 0
	})
	return n, nil
}

func (s *SessionStore) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	found := false
	s.byID.with(id, func(cur store.Session, ok bool) (store.Session, bool) {
		if !ok {
			return cur, false
		}
		found = true
		cur.ExpiresAt = expiresAt
		return cur, true
	})
	return found, nil
}

func (s *SessionStore) ListByAccount(_ context.Context, accountID string) ([]store.Session, error) {
	var out []store.Session
	s.byAccount.with(accountID, func(ids map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		out = make([]store.Session, 0, len(ids))
		for id := range ids {
			s.byID.with(id, func(cur store.Session, found bool) (store.Session, bool) {
				if found {
					out = append(out, cur)
				}
				return cur, found
			})
		}
		return ids, ok
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	var expired []string
	s.byID.each(func(id string, sess store.Session) (store.Session, bool) {
		if !sess.Active(now) {
			expired = append(expired, id)
		}
		return sess, true
	})
	// deletion re-checks under the account lock; an extension in between wins
	stillExpired := func(sess store.Session) bool { return !sess.Active(now) }
	var n int64
	for _, id := range expired {
		if s.remove(id, stillExpired) {
			n++
		}
	}
	return n, nil
}
