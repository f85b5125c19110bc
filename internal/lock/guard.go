package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another holder owns the key.
var ErrHeld = errors.New("lock is held")

// ErrLost is returned by Extend once the lease has passed to another holder.
var ErrLost = errors.New("lease lost")

// Guard hands out exclusive, expiring locks keyed by string.
type Guard interface {
	// Acquire returns the lease, or ErrHeld if the key is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// Held reports whether a live lease exists for key.
	Held(ctx context.Context, key string) (bool, error)
}

// Lease is one holder's claim on a key. Long holders must Extend before the ttl runs out.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisGuard struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisGuard(rdb redis.UniversalClient, prefix string) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: prefix}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	k := g.prefix + key
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{rdb: g.rdb, key: k, token: token}, nil
}

func (g *RedisGuard) Held(ctx context.Context, key string) (bool, error) {
	n, err := g.rdb.Exists(ctx, g.prefix+key).Result()
	return n > 0, err
}

type redisLease struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (l *redisLease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// MemoryGuard is the single-process Guard used when Redis is not configured.
type MemoryGuard struct {
	mu   sync.Mutex
	seq  uint64
	held map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: map[string]memoryEntry{}, now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.held[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	g.seq++
	g.held[key] = memoryEntry{token: g.seq, expires: now.Add(ttl)}
	return &memoryLease{g: g, key: key, token: g.seq}, nil
}

func (g *MemoryGuard) Held(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.held[key]
	return ok && g.now().Before(e.expires), nil
}

type memoryLease struct {
	g     *MemoryGuard
	key   string
	token uint64
}

// Extend also revives an expired lease, as long as nobody else took the key meanwhile.
func (l *memoryLease) Extend(_ context.Context, ttl time.Duration) error {
	l.g.mu.Lock()
	defer l.g.mu.Unlock()
	e, ok := l.g.held[l.key]
	if !ok || e.token != l.token {
		return ErrLost
	}
	e.expires = l.g.now().Add(ttl)
	l.g.held[l.key] = e
	return nil
}

func (l *memoryLease) Release() {
	l.g.mu.Lock()
	defer l.g.mu.Unlock()
	if e, ok := l.g.held[l.key]; ok && e.token == l.token {
		delete(l.g.held, l.key)
	}
}

var (
	_ Guard = (*RedisGuard)(nil)
	_ Guard = (*MemoryGuard)(nil)
)
