package lock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers keys for a TTL and reports whether a key is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) bool
	// Forget drops key so a failed event can be processed again on redelivery.
	Forget(ctx context.Context, key string)
}

type RedisDeduper struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisDeduper(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logger}
}

// FirstSeen fails open: when Redis is unreachable the event is processed.
func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedup check failed, allowing processing", zap.String("key", key), zap.Error(err))
		return true
	}
	if !ok {
		d.logger.Info("skipped duplicated event", zap.String("key", key))
	}
	return ok
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, "dedup:"+key).Err(); err != nil {
		d.logger.Warn("redis dedup forget failed", zap.String("key", key), zap.Error(err))
	}
}

type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: map[string]time.Time{}}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	if len(d.seen) > 10000 {
		for k, exp := range d.seen {
			if now.After(exp) {
				delete(d.seen, k)
			}
		}
	}
	d.seen[key] = now.Add(d.ttl)
	return true
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = (*MemoryDeduper)(nil)
)
