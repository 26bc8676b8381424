package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
)

const redisKeyPrefix = "accessctl:ratelimit:"

// RedisTokenStorage keeps each (rule, user) bucket in a sorted set
// scored by expiry in unix milliseconds. Acquisition prunes expired
// members and inserts atomically via a Lua script so concurrent
// callers never exceed the limit.
type RedisTokenStorage struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisTokenStorage(client *redis.Client) *RedisTokenStorage {
	return &RedisTokenStorage{client: client, now: time.Now}
}

func bucketRedisKey(ruleID, user string) string {
	return fmt.Sprintf("%s%s:%s", redisKeyPrefix, ruleID, user)
}

// KEYS[1] bucket, ARGV[1] now ms, ARGV[2] limit, ARGV[3] token id,
// ARGV[4] expire ms
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
return 1
`)

func (s *RedisTokenStorage) AcquireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error) {
	now := s.now()
	tok := &SingleToken{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		User:        user,
		AcquireTime: now,
		ExpireTime:  now.Add(rule.TimeSpan),
	}

	ok, err := acquireScript.Run(ctx, s.client,
		[]string{bucketRedisKey(rule.ID, user)},
		now.UnixMilli(), rule.Limit, tok.ID, tok.ExpireTime.UnixMilli(),
	).Int()
	if err != nil {
		return nil, acerrors.ErrQuery.Wrap(err)
	}
	if ok == 0 {
		return nil, nil
	}
	return tok, nil
}

func (s *RedisTokenStorage) GetFirstExpireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error) {
	now := s.now()
	members, err := s.client.ZRangeByScoreWithScores(ctx, bucketRedisKey(rule.ID, user), &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", now.UnixMilli()),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return nil, acerrors.ErrQuery.Wrap(err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	expire := time.UnixMilli(int64(members[0].Score))
	return &SingleToken{
		ID:          members[0].Member.(string),
		RuleID:      rule.ID,
		User:        user,
		AcquireTime: expire.Add(-rule.TimeSpan),
		ExpireTime:  expire,
	}, nil
}

func (s *RedisTokenStorage) RetireToken(ctx context.Context, rule Rule, tokenID string) error {
	var cursor uint64
	pattern := redisKeyPrefix + rule.ID + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return acerrors.ErrQuery.Wrap(err)
		}
		for _, key := range keys {
			if err := s.client.ZRem(ctx, key, tokenID).Err(); err != nil {
				return acerrors.ErrQuery.Wrap(err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// DeleteOutdatedTokens trims expired members. Redis already ages out
// whole buckets via PEXPIREAT, so this only sweeps partially live
// ones.
func (s *RedisTokenStorage) DeleteOutdatedTokens(ctx context.Context, now time.Time) error {
	return s.forEachBucket(ctx, redisKeyPrefix+"*", func(key string) error {
		return s.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprint(now.UnixMilli())).Err()
	})
}

func (s *RedisTokenStorage) ClearTokens(ctx context.Context, ruleID string) error {
	return s.forEachBucket(ctx, redisKeyPrefix+ruleID+":*", func(key string) error {
		return s.client.Del(ctx, key).Err()
	})
}

func (s *RedisTokenStorage) forEachBucket(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return acerrors.ErrQuery.Wrap(err)
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return acerrors.ErrQuery.Wrap(err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
