package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/store"
)

// InvitationStore keeps invitations at {prefix}:inv:{id}. A token-hash
// pointer resolves Accept, and {prefix}:inv:open orders non-terminal
// invitations by expiry for FindExpired.
type InvitationStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.InvitationStore = (*InvitationStore)(nil)

func NewInvitationStore(client redis.UniversalClient, prefix string) *InvitationStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &InvitationStore{redis: client, prefix: prefix}
}

func (s *InvitationStore) key(id string) string { return s.prefix + ":inv:" + id }

func (s *InvitationStore) tokenKey(h store.TokenHash) string {
	return s.prefix + ":inv:hash:" + hashKey(h)
}

func (s *InvitationStore) openKey() string { return s.prefix + ":inv:open" }

func (s *InvitationStore) Create(ctx context.Context, inv store.Invitation) error {
	encoded, err := encodeInvitation(inv)
	if err != nil {
		return err
	}
	key, hkey := s.key(inv.ID), s.tokenKey(inv.TokenHash)
	err = watch(ctx, s.redis, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key, hkey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.Set(ctx, hkey, inv.ID, 0)
			if !inv.Status.Terminal() {
				pipe.ZAdd(ctx, s.openKey(), redis.Z{Score: float64(micros(inv.ExpiresAt)), Member: inv.ID})
			}
			return nil
		})
		return err
	}, key, hkey)
	return wrap(err)
}

func (s *InvitationStore) load(ctx context.Context, c getter, id string) (store.Invitation, bool, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Invitation{}, false, nil
	}
	if err != nil {
		return store.Invitation{}, false, err
	}
	inv, err := decodeInvitation(data)
	return inv, err == nil, err
}

func (s *InvitationStore) Get(ctx context.Context, id string) (store.Invitation, bool, error) {
	inv, ok, err := s.load(ctx, s.redis, id)
	if err != nil {
		return store.Invitation{}, false, wrap(err)
	}
	return inv, ok, nil
}

// mutate applies fn to the invitation under WATCH. fn returns false to leave
// the record untouched.
func (s *InvitationStore) mutate(ctx context.Context, id string, fn func(inv *store.Invitation, found bool) (bool, error)) error {
	key := s.key(id)
	err := watch(ctx, s.redis, func(tx *redis.Tx) error {
		inv, found, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		write, err := fn(&inv, found)
		if err != nil || !write {
			return err
		}
		encoded, err := encodeInvitation(inv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if inv.Status.Terminal() {
				pipe.ZRem(ctx, s.openKey(), inv.ID)
			}
			return nil
		})
		return err
	}, key)
	return wrap(err)
}

func applyTransition(inv *store.Invitation, next store.InvitationStatus, now time.Time) error {
	if !inv.Status.CanTransitionTo(next) {
		return store.ErrInvalidTransition
	}
	at := now
	switch next {
	case store.InvitationSent:
		inv.SentAt = &at
	case store.InvitationAccepted:
		inv.AcceptedAt = &at
	}
	inv.Status = next
	return nil
}

func (s *InvitationStore) Transition(ctx context.Context, id string, next store.InvitationStatus, now time.Time) (store.Invitation, error) {
	var out store.Invitation
	err := s.mutate(ctx, id, func(inv *store.Invitation, found bool) (bool, error) {
		if !found {
			return false, store.ErrNotFound
		}
		out = *inv
		if err := applyTransition(inv, next, now); err != nil {
			return false, err
		}
		out = *inv
		return true, nil
	})
	return out, err
}

func (s *InvitationStore) Resend(ctx context.Context, id string, now time.Time) (store.Invitation, error) {
	var out store.Invitation
	err := s.mutate(ctx, id, func(inv *store.Invitation, found bool) (bool, error) {
		if !found {
			return false, store.ErrNotFound
		}
		out = *inv
		if inv.Status.Terminal() {
			return false, store.ErrInvalidTransition
		}
		at := now
		inv.SentAt = &at
		inv.ResendCount++
		out = *inv
		return true, nil
	})
	return out, err
}

func (s *InvitationStore) Accept(ctx context.Context, hash store.TokenHash, now time.Time) (store.Invitation, store.RedeemOutcome, error) {
	id, err := s.redis.Get(ctx, s.tokenKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return store.Invitation{}, store.RedeemNotFound, nil
	}
	if err != nil {
		return store.Invitation{}, 0, unavailable(err)
	}

	var (
		out     store.Invitation
		outcome store.RedeemOutcome
	)
	err = s.mutate(ctx, id, func(inv *store.Invitation, found bool) (bool, error) {
		out = *inv
		switch {
		case !found:
			outcome = store.RedeemNotFound
			return false, nil
		case inv.Status == store.InvitationAccepted:
			outcome = store.RedeemAlreadyUsed
			return false, nil
		case inv.Status == store.InvitationExpired, !now.Before(inv.ExpiresAt):
			outcome = store.RedeemExpired
			return false, nil
		}
		if err := applyTransition(inv, store.InvitationAccepted, now); err != nil {
			outcome = store.RedeemAlreadyUsed
			return false, nil
		}
		out, outcome = *inv, store.RedeemOK
		return true, nil
	})
	if err != nil {
		return store.Invitation{}, 0, err
	}
	return out, outcome, nil
}

// FindExpired returns non-terminal invitations with ExpiresAt <= now, oldest
// expiry first.
func (s *InvitationStore) FindExpired(ctx context.Context, now time.Time) ([]store.Invitation, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.openKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(micros(now), 10),
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	var out []store.Invitation
	for _, id := range ids {
		inv, ok, err := s.load(ctx, s.redis, id)
		if err != nil {
			return nil, wrap(err)
		}
		if ok && !inv.Status.Terminal() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func encodeInvitation(inv store.Invitation) ([]byte, error) {
	e := newEncoder()
	e.u8(uint8(inv.Status))
	e.buf.Write(inv.TokenHash[:])
	e.i64(int64(inv.ResendCount))
	e.time(inv.CreatedAt)
	e.time(inv.ExpiresAt)
	e.optTime(inv.SentAt)
	e.optTime(inv.AcceptedAt)
	e.str(inv.ID)
	e.str(inv.AccountID)
	return e.bytes()
}

func decodeInvitation(data []byte) (store.Invitation, error) {
	d := newDecoder(data)
	inv := store.Invitation{
		Status:      store.InvitationStatus(d.u8()),
		TokenHash:   d.hash(),
		ResendCount: int(d.i64()),
		CreatedAt:   d.time(),
		ExpiresAt:   d.time(),
		SentAt:      d.optTime(),
		AcceptedAt:  d.optTime(),
		ID:          d.str(),
		AccountID:   d.str(),
	}
	return inv, d.done()
}
