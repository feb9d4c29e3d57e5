package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"autotrader/internal/model"
)

const (
	defaultCacheTTL       = 24 * time.Hour
	defaultCacheNamespace = "history"
	scanBatch             = 200
)

// CachedSource is a Redis read-through decorator over another Source. Cache
// failures never fail a read. A nil client bypasses the cache.
type CachedSource struct {
	inner     Source
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

func NewCachedSource(rdb *redis.Client, ttl time.Duration, inner Source, namespace string) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if namespace == "" {
		namespace = defaultCacheNamespace
	}
	return &CachedSource{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

func (c *CachedSource) MinuteCandles(ctx context.Context, symbol string, interval int, count int) ([]model.Candle, error) {
	key := c.key(symbol, fmt.Sprintf("m%d", interval), count)
	return c.load(ctx, key, func() ([]model.Candle, error) {
		return c.inner.MinuteCandles(ctx, symbol, interval, count)
	})
}

func (c *CachedSource) DailyCandles(ctx context.Context, symbol string, count int) ([]model.Candle, error) {
	key := c.key(symbol, "d", count)
	return c.load(ctx, key, func() ([]model.Candle, error) {
		return c.inner.DailyCandles(ctx, symbol, count)
	})
}

func (c *CachedSource) load(ctx context.Context, key string, fetch func() ([]model.Candle, error)) ([]model.Candle, error) {
	if c.rdb == nil {
		return fetch()
	}

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []model.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		logs.Warnf("drop corrupted cache entry %s", key)
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			logs.Debugf("cache set %s, err: %+v", key, err)
		}
	}
	return out, nil
}

// Invalidate removes every cached series of symbol.
func (c *CachedSource) Invalidate(ctx context.Context, symbol string) error {
	if c.rdb == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s:%s:*", c.namespace, safe(symbol))
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *CachedSource) key(symbol, series string, count int) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.namespace, safe(symbol), series, count)
}

func safe(s string) string {
	return strings.NewReplacer(" ", "_", ":", "_", "*", "_").Replace(s)
}
