//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/infra/ratelimit"
)

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type fakeExpirer struct {
	calls int32
	n     int
	err   error
}

func (f *fakeExpirer) ExpireDue(context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.n, f.err
}

func TestLicenseExpiryWorker(t *testing.T) {
	t.Run("should sweep on every tick until cancelled", func(t *testing.T) {
		exp := &fakeExpirer{n: 2}
		w := NewLicenseExpiryWorker(10*time.Millisecond, exp, nopLogger())
		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		err := w.Run(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if atomic.LoadInt32(&exp.calls) == 0 {
			t.Error("expected at least one sweep")
		}
	})

	t.Run("should survive a failing sweep", func(t *testing.T) {
		exp := &fakeExpirer{err: errors.New("db down")}
		w := NewLicenseExpiryWorker(time.Hour, exp, nopLogger())
		w.tick(context.Background())
		w.tick(context.Background())
		if got := atomic.LoadInt32(&exp.calls); got != 2 {
			t.Errorf("expected 2 calls, got %d", got)
		}
	})
}

func TestRateLimitSweepWorker(t *testing.T) {
	t.Run("should reclaim finished windows", func(t *testing.T) {
		lim := ratelimit.NewMemoryLimiter()
		ctx := context.Background()
		if _, err := lim.Allow(ctx, "validate:1.2.3.4", 5, time.Second); err != nil {
			t.Fatalf("allow: %v", err)
		}
		w := NewRateLimitSweepWorker(time.Hour, lim, nopLogger())
		w.now = func() time.Time { return time.Now().Add(time.Hour) }
		w.tick()
		if got := lim.Len(); got != 0 {
			t.Errorf("expected no windows left, got %d", got)
		}
	})
}
