//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestPool(t *testing.T) {
	t.Run("should run submitted tasks", func(t *testing.T) {
		p := NewPool(2, 8, nopLogger())
		p.Start(context.Background())
		var n int32
		for i := 0; i < 5; i++ {
			if err := p.Submit(func(context.Context) error { atomic.AddInt32(&n, 1); return nil }); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		p.Stop()
		if got := atomic.LoadInt32(&n); got != 5 {
			t.Errorf("expected 5 tasks to run, got %d", got)
		}
	})

	t.Run("should report a full queue", func(t *testing.T) {
		p := NewPool(1, 1, nopLogger())
		if err := p.Submit(func(context.Context) error { return nil }); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("should reject tasks after stop", func(t *testing.T) {
		p := NewPool(1, 1, nopLogger())
		p.Start(context.Background())
		p.Stop()
		p.Stop()
		if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	})

	t.Run("should keep running after a task fails", func(t *testing.T) {
		p := NewPool(1, 4, nopLogger())
		p.Start(context.Background())
		done := make(chan struct{})
		_ = p.Submit(func(context.Context) error { return errors.New("boom") })
		_ = p.Submit(func(context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("second task never ran")
		}
		p.Stop()
	})
}
