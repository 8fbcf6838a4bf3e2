package redis

import (
	"context"
	"fmt"
	"time"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/ratelimit"
)

var (
	_ adapter.RateLimiter = (*RateLimiter)(nil)
	_ adapter.Sweeper     = (*RateLimiter)(nil)
)

// RateLimiter keeps fixed-window counters in Redis so every instance shares them.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

func (r *RateLimiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (adapter.Decision, error) {
	if limit <= 0 || window <= 0 {
		return adapter.Decision{}, domain.ErrInvalidArgument
	}
	start, reset := ratelimit.WindowBounds(r.now(), window)

	count, err := r.client.IncrExpireAt(ctx, WindowKey(identifier, start), reset)
	if err != nil {
		return adapter.Decision{}, err
	}

	d := adapter.Decision{Limit: limit, ResetAt: reset}
	if count > int64(limit) {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = limit - int(count)
	return d, nil
}

// Sweep is a no-op; window keys expire on their own.
func (r *RateLimiter) Sweep(time.Time) int { return 0 }

func WindowKey(identifier string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", identifier, windowStart.UnixMilli())
}
