package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec/store"
)

const maxRetries = 4

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
redis.call("SREM", KEYS[3], ARGV[1])
redis.call("ZREM", KEYS[4], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed [store.SessionStore].
type Store struct {
	redis  redis.UniversalClient
	prefix string
	log    *zap.Logger
}

var _ store.SessionStore = (*Store)(nil)

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for index repair messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "acs"
	}
	s := &Store{
		redis:  client,
		prefix: prefix,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + ":sess:" + id
}

func (s *Store) tokenKey(hash store.TokenHash) string {
	return s.prefix + ":sess:tok:" + hex.EncodeToString(hash[:])
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":sess:acct:" + accountID
}

func (s *Store) expiryKey() string {
	return s.prefix + ":sess:exp"
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// Create persists sess and its indexes in one transaction.
func (s *Store) Create(ctx context.Context, sess store.Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	sessionKey := s.key(sess.ID)
	tokenKey := s.tokenKey(sess.TokenHash)

	for i := 0; i < maxRetries; i++ {
		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, sessionKey, tokenKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return store.ErrDuplicate
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, sessionKey, data, 0)
				pipe.Set(ctx, tokenKey, sess.ID, 0)
				pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
				pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
					Score:  float64(sess.ExpiresAt.UnixMicro()),
					Member: sess.ID,
				})
				return nil
			})
			return err
		}, sessionKey, tokenKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return err
			}
			return unavailable(err)
		}
		return nil
	}
	return store.ErrConflict
}

// GetByTokenHash resolves a session through the token index.
func (s *Store) GetByTokenHash(ctx context.Context, hash store.TokenHash) (store.Session, bool, error) {
	id, err := s.redis.Get(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Session{}, false, nil
		}
		return store.Session{}, false, unavailable(err)
	}
	sess, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return sess, ok, err
	}
	if sess.TokenHash != hash {
		return store.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Session, bool, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Session{}, false, nil
		}
		return store.Session{}, false, unavailable(err)
	}
	sess, err := Decode(data)
	if err != nil {
		return store.Session{}, false, err
	}
	return sess, true, nil
}

// Delete removes a session and its index entries. Deleting an absent session
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.delete(ctx, id)
	return err
}

func (s *Store) delete(ctx context.Context, id string) (bool, error) {
	sess, ok, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	keys := []string{
		s.key(id),
		s.tokenKey(sess.TokenHash),
		s.accountKey(sess.AccountID),
		s.expiryKey(),
	}
	existed, err := deleteSessionLua.Run(ctx, s.redis, keys, id).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return existed == 1, nil
}

// DeleteByAccount removes every session of accountID not named in keep.
//
// Sessions created while this runs may survive it. The caller's follow-up
// revocation or expiry covers them.
func (s *Store) DeleteByAccount(ctx context.Context, accountID string, keep ...string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}
	removed := 0
	for _, id := range ids {
		if _, ok := skip[id]; ok {
			continue
		}
		existed, err := s.delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
			continue
		}
		if err := s.redis.SRem(ctx, s.accountKey(accountID), id).Err(); err != nil {
			return removed, unavailable(err)
		}
	}
	return removed, nil
}

// UpdateExpiry rewrites ExpiresAt of an existing session.
func (s *Store) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	key := s.key(id)
	var found bool

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			found = false
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			sess, err := Decode(data)
			if err != nil {
				return err
			}
			sess.ExpiresAt = expiresAt
			updated, err := Encode(sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
					Score:  float64(expiresAt.UnixMicro()),
					Member: id,
				})
				return nil
			})
			if err != nil {
				return err
			}
			found = true
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrSessionCorrupt) {
				return false, err
			}
			return false, unavailable(err)
		}
		return found, nil
	}
	return false, store.ErrConflict
}

// ListByAccount returns the account's sessions, oldest first. Index entries
// whose session is gone are dropped from the index.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]store.Session, error) {
	accountKey := s.accountKey(accountID)
	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []store.Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	_, err = pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	sessions := make([]store.Session, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, unavailable(cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, accountKey, stale...).Err(); err != nil {
			s.log.Warn("session index repair failed", zap.String("account_id", accountID), zap.Error(err))
		} else {
			s.log.Debug("session index repaired", zap.String("account_id", accountID), zap.Int("removed", len(stale)))
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// PurgeExpired deletes sessions whose ExpiresAt is at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	upper := strconv.FormatInt(now.UnixMicro(), 10)
	for {
		ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   upper,
			Count: 500,
		}).Result()
		if err != nil {
			return purged, unavailable(err)
		}
		if len(ids) == 0 {
			return purged, nil
		}
		for _, id := range ids {
			existed, err := s.delete(ctx, id)
			if err != nil {
				return purged, err
			}
			if existed {
				purged++
				continue
			}
			if err := s.redis.ZRem(ctx, s.expiryKey(), id).Err(); err != nil {
				return purged, unavailable(err)
			}
		}
	}
}
