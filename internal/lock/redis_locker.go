// Package lock provides a redis-backed gocron locker so that, with several orchestrator
// replicas, each agent timer fires on one replica only.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another replica owns the key.
var ErrLockHeld = errors.New("lock is held by another instance")

const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Client is the subset of *redis.Client the locker needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type RedisLocker struct {
	client Client
	prefix string
	ttl    time.Duration
}

var _ gocron.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{client: l.client, key: full, token: token}, nil
}

type redisLock struct {
	client Client
	key    string
	token  string
}

// Unlock releases the key only if this lock still owns it.
func (l *redisLock) Unlock(ctx context.Context) error {
	if err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
