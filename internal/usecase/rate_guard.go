// File: internal/usecase/rate_guard.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/infra/metrics"
	"tw-license-service/internal/infra/ratelimit"
)

// Operation names a rate-limited operation class. Each has its own counters.
type Operation string

const (
	OpActivate Operation = "activate"
	OpValidate Operation = "validate"
	OpList     Operation = "list"
	OpRename   Operation = "rename"
	OpRevoke   Operation = "revoke"
)

type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateGuard applies per-operation policies on top of a RateLimiter.
type RateGuard struct {
	limiter  adapter.RateLimiter
	policies map[Operation]RatePolicy
	timeout  time.Duration
	log      *zerolog.Logger
	clock    func() time.Time
}

func NewRateGuard(limiter adapter.RateLimiter, policies map[Operation]RatePolicy, timeout time.Duration, logger *zerolog.Logger) *RateGuard {
	l := logger.With().Str("component", "rate_guard").Logger()
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RateGuard{limiter: limiter, policies: policies, timeout: timeout, log: &l, clock: time.Now}
}

// Check counts one call for identifier under op. A denial returns the
// decision together with a *domain.RateLimitError. Backend failures admit the call.
func (g *RateGuard) Check(ctx context.Context, op Operation, identifier string) (adapter.Decision, error) {
	p, ok := g.policies[op]
	if !ok || p.Limit <= 0 || p.Window <= 0 {
		return adapter.Decision{Allowed: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	d, err := g.limiter.Allow(ctx, string(op)+":"+identifier, p.Limit, p.Window)
	if err != nil {
		metrics.IncRateLimiterError(string(op))
		logging.With(ctx, g.log).Warn().Err(err).Str("operation", string(op)).Msg("rate limiter unavailable; admitting request")
		// the count is unknown; report the policy and the window it would fall in
		_, reset := ratelimit.WindowBounds(g.clock(), p.Window)
		return adapter.Decision{Allowed: true, Limit: p.Limit, Remaining: p.Limit, ResetAt: reset}, nil
	}
	if !d.Allowed {
		metrics.IncRateLimited(string(op))
		return d, &domain.RateLimitError{Operation: string(op), Limit: d.Limit, ResetAt: d.ResetAt}
	}
	return d, nil
}
