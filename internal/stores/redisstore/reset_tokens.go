package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/store"
)

// ResetTokenStore keeps reset tokens at {prefix}:reset:{hash} with a
// per-account set of hashes and an expiry-ordered zset for purging.
type ResetTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

func NewResetTokenStore(client redis.UniversalClient, prefix string) *ResetTokenStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &ResetTokenStore{redis: client, prefix: prefix}
}

func (s *ResetTokenStore) key(hash string) string { return s.prefix + ":reset:" + hash }

func (s *ResetTokenStore) accountKey(accountID string) string {
	return s.prefix + ":reset:acct:" + accountID
}

func (s *ResetTokenStore) expiryKey() string { return s.prefix + ":reset:exp" }

func (s *ResetTokenStore) Create(ctx context.Context, t store.PasswordResetToken) error {
	encoded, err := encodeResetToken(t)
	if err != nil {
		return err
	}
	h := hashKey(t.TokenHash)
	key := s.key(h)
	err = watch(ctx, s.redis, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, s.accountKey(t.AccountID), h)
			pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(micros(t.ExpiresAt)), Member: h})
			return nil
		})
		return err
	}, key)
	return wrap(err)
}

func (s *ResetTokenStore) get(ctx context.Context, c getter, key string) (store.PasswordResetToken, bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.PasswordResetToken{}, false, nil
	}
	if err != nil {
		return store.PasswordResetToken{}, false, err
	}
	t, err := decodeResetToken(data)
	return t, err == nil, err
}

// markUsed sets UsedAt on the token at key when it is still unused and, with
// requireLive, unexpired.
func (s *ResetTokenStore) markUsed(ctx context.Context, key string, now time.Time, requireLive bool) (store.PasswordResetToken, store.RedeemOutcome, error) {
	var (
		out     store.PasswordResetToken
		outcome store.RedeemOutcome
	)
	err := watch(ctx, s.redis, func(tx *redis.Tx) error {
		t, ok, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		out = t
		switch {
		case !ok:
			outcome = store.RedeemNotFound
			return nil
		case t.UsedAt != nil:
			outcome = store.RedeemAlreadyUsed
			return nil
		case requireLive && !now.Before(t.ExpiresAt):
			outcome = store.RedeemExpired
			return nil
		}
		used := now
		t.UsedAt = &used
		encoded, err := encodeResetToken(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out, outcome = t, store.RedeemOK
		return nil
	}, key)
	if err != nil {
		return store.PasswordResetToken{}, 0, wrap(err)
	}
	return out, outcome, nil
}

func (s *ResetTokenStore) Redeem(ctx context.Context, hash store.TokenHash, now time.Time) (store.PasswordResetToken, store.RedeemOutcome, error) {
	return s.markUsed(ctx, s.key(hashKey(hash)), now, true)
}

func (s *ResetTokenStore) InvalidateAccount(ctx context.Context, accountID string, now time.Time) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	n := 0
	for _, h := range hashes {
		_, outcome, err := s.markUsed(ctx, s.key(h), now, false)
		if err != nil {
			return n, err
		}
		if outcome == store.RedeemOK {
			n++
		}
	}
	return n, nil
}

// PurgeExpiredBefore deletes tokens whose expiry is strictly before cutoff.
func (s *ResetTokenStore) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	bound := "(" + strconv.FormatInt(micros(cutoff), 10)
	var purged int64
	for {
		hashes, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   bound,
			Count: purgeBatch,
		}).Result()
		if err != nil {
			return purged, unavailable(err)
		}
		if len(hashes) == 0 {
			return purged, nil
		}
		for _, h := range hashes {
			key := s.key(h)
			t, ok, err := s.get(ctx, s.redis, key)
			if err != nil {
				return purged, wrap(err)
			}
			_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if ok {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.accountKey(t.AccountID), h)
				}
				pipe.ZRem(ctx, s.expiryKey(), h)
				return nil
			})
			if err != nil {
				return purged, unavailable(err)
			}
			if ok {
				purged++
			}
		}
	}
}

func encodeResetToken(t store.PasswordResetToken) ([]byte, error) {
	e := newEncoder()
	e.buf.Write(t.TokenHash[:])
	e.time(t.CreatedAt)
	e.time(t.ExpiresAt)
	e.optTime(t.UsedAt)
	e.str(t.ID)
	e.str(t.AccountID)
	return e.bytes()
}

func decodeResetToken(data []byte) (store.PasswordResetToken, error) {
	d := newDecoder(data)
	t := store.PasswordResetToken{
		TokenHash: d.hash(),
		CreatedAt: d.time(),
		ExpiresAt: d.time(),
		UsedAt:    d.optTime(),
		ID:        d.str(),
		AccountID: d.str(),
	}
	return t, d.done()
}
