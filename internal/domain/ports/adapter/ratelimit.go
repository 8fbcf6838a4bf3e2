package adapter

import (
	"context"
	"time"
)

// Decision is the outcome of one rate-limited call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts calls per identifier in fixed windows aligned to the epoch.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, limit int, window time.Duration) (Decision, error)
}

// Sweeper reclaims expired windows. Backends with native expiry return 0.
type Sweeper interface {
	Sweep(now time.Time) int
}
