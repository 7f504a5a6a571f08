package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jaydenbeard/sdk-core/internal/ids"
	"github.com/jaydenbeard/sdk-core/internal/tcrypto"
	"github.com/redis/go-redis/v9"
)

// RedisResourceKeyCache is a shared cache tier in front of a Store's
// resource-key table, grounded on a RedisInbox-style client wrapper: same
// client+ctx field shape, same key-per-identifier naming convention
// ("rk:<trustchainId>:<resourceId>" here), so independent SDK processes
// sharing a trustchain can skip a key-publish round trip for a resource
// another process already unwrapped.
type RedisResourceKeyCache struct {
	client       *redis.Client
	trustchainID ids.TrustchainID
	ttl          time.Duration
}

func NewRedisResourceKeyCache(client *redis.Client, trustchainID ids.TrustchainID, ttl time.Duration) *RedisResourceKeyCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisResourceKeyCache{client: client, trustchainID: trustchainID, ttl: ttl}
}

func (c *RedisResourceKeyCache) key(id ids.ResourceID) string {
	return fmt.Sprintf("rk:%s:%s", hex.EncodeToString(c.trustchainID[:]), hex.EncodeToString(id))
}

func (c *RedisResourceKeyCache) Put(ctx context.Context, id ids.ResourceID, key tcrypto.SymmetricKey) error {
	return c.client.Set(ctx, c.key(id), hex.EncodeToString(key[:]), c.ttl).Err()
}

func (c *RedisResourceKeyCache) Get(ctx context.Context, id ids.ResourceID) (tcrypto.SymmetricKey, bool, error) {
	val, err := c.client.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return tcrypto.SymmetricKey{}, false, nil
	}
	if err != nil {
		return tcrypto.SymmetricKey{}, false, fmt.Errorf("redis resource key cache: %w", err)
	}
	raw, err := hex.DecodeString(val)
	if err != nil || len(raw) != tcrypto.SymmetricKeySize {
		return tcrypto.SymmetricKey{}, false, fmt.Errorf("redis resource key cache: corrupt entry")
	}
	var k tcrypto.SymmetricKey
	copy(k[:], raw)
	return k, true, nil
}
