package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL   = 10 * time.Second
	DefaultRetryWait = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX, for deployments that run
// more than one process against the same database.
type RedisLocker struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "nibbles:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: DefaultLockTTL, retryWait: DefaultRetryWait}
}

// WithTTL sets how long a lock survives a holder that never releases it.
func (l *RedisLocker) WithTTL(ttl time.Duration) *RedisLocker {
	if ttl > 0 {
		l.ttl = ttl
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return func() {
		// Release must still run when the caller's context is already done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed release is cleaned up by the TTL.
		_ = releaseScript.Run(rctx, l.client, []string{fullKey}, token).Err()
	}, nil
}
