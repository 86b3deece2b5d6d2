package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumedChallengeCache is a Redis fast path in front of the ledger. It is
// only ever written after the ledger row committed, so a hit is authoritative
// and a miss proves nothing.
type ConsumedChallengeCache interface {
	Contains(ctx context.Context, jti string) (bool, error)
	Remember(ctx context.Context, jti string, until time.Time) error
	Ping(ctx context.Context) error
}

type redisConsumedChallengeCache struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewConsumedChallengeCache(client redis.UniversalClient, prefix string) ConsumedChallengeCache {
	if prefix == "" {
		prefix = "cc"
	}
	return &redisConsumedChallengeCache{redis: client, prefix: prefix, now: time.Now}
}

func (c *redisConsumedChallengeCache) key(jti string) string {
	return c.prefix + ":" + jti
}

func (c *redisConsumedChallengeCache) Contains(ctx context.Context, jti string) (bool, error) {
	_, err := c.redis.Get(ctx, c.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember marks jti as consumed until the challenge's own expiry; after
// that the signature check rejects it anyway.
func (c *redisConsumedChallengeCache) Remember(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	return c.redis.Set(ctx, c.key(jti), "1", ttl).Err()
}

func (c *redisConsumedChallengeCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
