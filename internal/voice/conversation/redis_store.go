package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

const (
	redisKeyPrefix = "voice:conversation:"
	redisIndexKey  = "voice:conversations"
)

// RedisStore keeps contexts as JSON values with native key expiry. A sorted
// set scored by LastUpdated (unix millis) indexes the live ids for Sweep.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	ids    *IDGenerator
	now    func() time.Time
}

// NewRedisStore returns a Store on top of client. Keys expire after ttl.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, ids: NewIDGenerator(), now: time.Now}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Put(ctx context.Context, id string, c domain.ConversationContext) error {
	stored := stamp(c, id, s.now())
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey(id), payload, s.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(stored.LastUpdated.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store conversation %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.ConversationContext, error) {
	payload, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}

	var c domain.ConversationContext
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *RedisStore) NewID(callerID int64) string {
	return s.ids.Next(callerID)
}

// Sweep drops index members scored before the cutoff. Each candidate key is
// WATCHed and re-checked so a context refreshed in between is kept.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl).UnixMilli()
	stale, err := s.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan conversation index: %w", err)
	}

	removed := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := s.evict(ctx, id, cutoff)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *RedisStore) evict(ctx context.Context, id string, cutoff int64) (bool, error) {
	key := redisKey(id)
	evicted := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// value already expired natively; only the index entry is left
		case err != nil:
			return err
		default:
			var c domain.ConversationContext
			if err := json.Unmarshal(payload, &c); err == nil && c.LastUpdated.UnixMilli() >= cutoff {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, redisIndexKey, id)
			return nil
		})
		if err == nil {
			evicted = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("evict conversation %s: %w", id, err)
	}
	return evicted, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return int(n), nil
}
