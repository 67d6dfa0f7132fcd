package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/store"
)

const purgeBatch = 500

// AttemptStore keeps attempts in a hash keyed by ID with sorted-set indexes
// scored by occurrence time:
//
//	{prefix}:att:data             hash  id -> record
//	{prefix}:att:all              zset  every attempt
//	{prefix}:att:fail:acct:{id}   zset  failures per account
//	{prefix}:att:fail:addr:{addr} zset  failures per source address
//	{prefix}:att:idx              set   names of the failure zsets
type AttemptStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.AttemptStore = (*AttemptStore)(nil)

func NewAttemptStore(client redis.UniversalClient, prefix string) *AttemptStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &AttemptStore{redis: client, prefix: prefix}
}

func (s *AttemptStore) dataKey() string  { return s.prefix + ":att:data" }
func (s *AttemptStore) allKey() string   { return s.prefix + ":att:all" }
func (s *AttemptStore) indexKey() string { return s.prefix + ":att:idx" }

func (s *AttemptStore) accountKey(accountID string) string {
	return s.prefix + ":att:fail:acct:" + accountID
}

func (s *AttemptStore) addressKey(addr string) string {
	return s.prefix + ":att:fail:addr:" + addr
}

func (s *AttemptStore) Append(ctx context.Context, a store.LoginAttempt) error {
	if a.ID == "" {
		return errors.New("redisstore: attempt id required")
	}
	encoded, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	score := float64(micros(a.OccurredAt))
	member := redis.Z{Score: score, Member: a.ID}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(), a.ID, encoded)
		pipe.ZAdd(ctx, s.allKey(), member)
		if !a.Failed() {
			return nil
		}
		if a.AccountID != "" {
			pipe.ZAdd(ctx, s.accountKey(a.AccountID), member)
			pipe.SAdd(ctx, s.indexKey(), s.accountKey(a.AccountID))
		}
		if a.SourceAddress != "" {
			pipe.ZAdd(ctx, s.addressKey(a.SourceAddress), member)
			pipe.SAdd(ctx, s.indexKey(), s.addressKey(a.SourceAddress))
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func sinceBound(since time.Time) string {
	return strconv.FormatInt(micros(since), 10)
}

func (s *AttemptStore) count(ctx context.Context, key string, since time.Time) (int, error) {
	n, err := s.redis.ZCount(ctx, key, sinceBound(since), "+inf").Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *AttemptStore) CountAccountFailures(ctx context.Context, accountID string, since time.Time) (int, error) {
	return s.count(ctx, s.accountKey(accountID), since)
}

func (s *AttemptStore) CountAddressFailures(ctx context.Context, addr string, since time.Time) (int, error) {
	return s.count(ctx, s.addressKey(addr), since)
}

func (s *AttemptStore) RecentAccountFailures(ctx context.Context, accountID string, since time.Time) ([]store.LoginAttempt, error) {
	ids, err := s.redis.ZRevRangeByScore(ctx, s.accountKey(accountID), &redis.ZRangeBy{
		Min: sinceBound(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := s.redis.HMGet(ctx, s.dataKey(), ids...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]store.LoginAttempt, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decodeAttempt([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// PurgeBefore deletes attempts that occurred strictly before cutoff.
func (s *AttemptStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	bound := "(" + strconv.FormatInt(micros(cutoff), 10)
	var purged int64
	for {
		ids, err := s.redis.ZRangeByScore(ctx, s.allKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   bound,
			Count: purgeBatch,
		}).Result()
		if err != nil {
			return purged, unavailable(err)
		}
		if len(ids) == 0 {
			break
		}
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.dataKey(), ids...)
			pipe.ZRem(ctx, s.allKey(), members...)
			return nil
		})
		if err != nil {
			return purged, unavailable(err)
		}
		purged += int64(len(ids))
	}

	keys, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return purged, unavailable(err)
	}
	for _, key := range keys {
		if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", bound).Err(); err != nil {
			return purged, unavailable(err)
		}
		n, err := s.redis.ZCard(ctx, key).Result()
		if err != nil {
			return purged, unavailable(err)
		}
		if n == 0 {
			if err := s.redis.SRem(ctx, s.indexKey(), key).Err(); err != nil {
				return purged, unavailable(err)
			}
		}
	}
	return purged, nil
}

func encodeAttempt(a store.LoginAttempt) ([]byte, error) {
	e := newEncoder()
	e.u8(uint8(a.Outcome))
	e.u8(uint8(a.FailureReason))
	e.time(a.OccurredAt)
	e.str(a.ID)
	e.str(a.AccountID)
	e.str(a.Identifier)
	e.str(a.SourceAddress)
	e.str(a.UserAgent)
	return e.bytes()
}

func decodeAttempt(data []byte) (store.LoginAttempt, error) {
	d := newDecoder(data)
	a := store.LoginAttempt{
		Outcome:       store.AttemptOutcome(d.u8()),
		FailureReason: store.FailureReason(d.u8()),
		OccurredAt:    d.time(),
		ID:            d.str(),
		AccountID:     d.str(),
		Identifier:    d.str(),
		SourceAddress: d.str(),
		UserAgent:     d.str(),
	}
	return a, d.done()
}
