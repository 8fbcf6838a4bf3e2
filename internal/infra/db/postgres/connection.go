package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"tw-license-service/internal/infra/metrics"
)

// NewPgxPool parses dsn, caps the pool at maxConns and pings once.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st := pool.Stat()
		metrics.SetStorePool(metrics.PoolSnapshot{
			Max:           st.MaxConns(),
			Total:         st.TotalConns(),
			Idle:          st.IdleConns(),
			InUse:         st.AcquiredConns(),
			EmptyAcquires: st.EmptyAcquireCount(),
		})
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
