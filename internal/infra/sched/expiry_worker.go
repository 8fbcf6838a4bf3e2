package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/infra/metrics"
)

// Expirer is satisfied by the issuance use case.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// LicenseExpiryWorker periodically moves overdue active licenses to expired.
// Validation expires lazily too, so a missed tick only delays the event.
type LicenseExpiryWorker struct {
	interval time.Duration
	expirer  Expirer
	log      *zerolog.Logger
}

func NewLicenseExpiryWorker(interval time.Duration, expirer Expirer, logger *zerolog.Logger) *LicenseExpiryWorker {
	l := logger.With().Str("component", "LicenseExpiryWorker").Logger()
	return &LicenseExpiryWorker{interval: interval, expirer: expirer, log: &l}
}

func (w *LicenseExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting license expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping license expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *LicenseExpiryWorker) tick(ctx context.Context) {
	n, err := w.expirer.ExpireDue(ctx)
	if err != nil {
		metrics.IncJobRun("license_expiry", "failed")
		w.log.Error().Err(err).Msg("license expiry sweep failed")
		return
	}
	metrics.IncJobRun("license_expiry", "ok")
	if n > 0 {
		w.log.Info().Int("count", n).Msg("licenses expired")
	}
}
