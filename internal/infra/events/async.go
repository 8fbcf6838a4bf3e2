package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/metrics"
	"tw-license-service/internal/infra/worker"
)

var _ adapter.EventPublisher = (*AsyncPublisher)(nil)

// AsyncPublisher hands events to a worker pool so request latency never
// depends on the broker. Events are dropped when the queue is full.
type AsyncPublisher struct {
	inner   adapter.EventPublisher
	pool    *worker.Pool
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAsyncPublisher(ctx context.Context, inner adapter.EventPublisher, workers, queueSize int, timeout time.Duration, logger *zerolog.Logger) *AsyncPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	l := logger.With().Str("component", "async_publisher").Logger()
	pool := worker.NewPool(workers, queueSize, logger)
	pool.Start(ctx)
	return &AsyncPublisher{inner: inner, pool: pool, timeout: timeout, log: &l}
}

func (p *AsyncPublisher) Publish(ctx context.Context, ev model.LicenseEvent) error {
	// the request context is cancelled once the handler returns
	base := context.WithoutCancel(ctx)
	err := p.pool.Submit(func(context.Context) error {
		c, cancel := context.WithTimeout(base, p.timeout)
		defer cancel()
		return p.inner.Publish(c, ev)
	})
	if err != nil {
		metrics.IncEventPublished(string(ev.Type), "dropped")
		if errors.Is(err, worker.ErrQueueFull) {
			p.log.Warn().Str("event", string(ev.Type)).Str("license_key", ev.LicenseKey).Msg("event queue full, dropping")
		}
		return err
	}
	return nil
}

// Close flushes queued events, then closes the inner publisher.
func (p *AsyncPublisher) Close() error {
	p.pool.Stop()
	return p.inner.Close()
}
