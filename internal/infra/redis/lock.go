// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tw-license-service/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// ErrLockNotAcquired means another holder kept the lock for every attempt.
var ErrLockNotAcquired = errors.New("lock not acquired")

type RedisLocker struct {
	cli      RedisClient
	attempts int
	backoff  time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c, attempts: 5, backoff: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, "lock:"+key, token, ttl)
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrLockNotAcquired
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.DelIfEqual(ctx, "lock:"+key, token)
	return err
}
