package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/pkg/crypto"
)

// RedisCache is the shared fact-cache backend for multi-process/multi-node
// deployments (SPEC_FULL §4.11), keyed "facts:<host>:<subset>".
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr/db with optional password.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func redisKey(host, subset string) string { return fmt.Sprintf("facts:%s:%s", host, subset) }

func (c *RedisCache) Get(host, subset string) (*Entry, bool, error) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, redisKey(host, subset)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	return &e, true, nil
}

func (c *RedisCache) PutEntry(e *Entry) error {
	ctx := context.Background()
	raw, err := json.Marshal(e)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	return c.client.Set(ctx, redisKey(e.Host, e.Subset), raw, c.ttl).Err()
}

func (c *RedisCache) Put(host, key string, value any) error {
	entry, found, err := c.Get(host, "dynamic")
	if err != nil {
		return err
	}
	if !found {
		entry = &Entry{Host: host, Subset: "dynamic", Data: map[string]any{}}
	}
	entry.Data[key] = value
	entry.GatheredAt = time.Now()
	entry.SourceHash = crypto.HashString(host + key)
	return c.PutEntry(entry)
}
