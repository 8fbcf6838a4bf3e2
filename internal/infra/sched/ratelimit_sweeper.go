package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/metrics"
)

// RateLimitSweepWorker reclaims finished windows from in-process limiters.
type RateLimitSweepWorker struct {
	interval time.Duration
	sweeper  adapter.Sweeper
	log      *zerolog.Logger
	now      func() time.Time
}

func NewRateLimitSweepWorker(interval time.Duration, sweeper adapter.Sweeper, logger *zerolog.Logger) *RateLimitSweepWorker {
	l := logger.With().Str("component", "RateLimitSweepWorker").Logger()
	return &RateLimitSweepWorker{interval: interval, sweeper: sweeper, log: &l, now: time.Now}
}

func (w *RateLimitSweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting rate limit sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping rate limit sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *RateLimitSweepWorker) tick() {
	n := w.sweeper.Sweep(w.now())
	metrics.AddWindowsSwept(n)
	metrics.IncJobRun("ratelimit_sweep", "ok")
	if n > 0 {
		w.log.Debug().Int("windows", n).Msg("rate limit windows swept")
	}
}
