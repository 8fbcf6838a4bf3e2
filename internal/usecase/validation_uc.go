// File: internal/usecase/validation_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/infra/metrics"
)

// Compile-time check
var _ ValidationUseCase = (*validationUC)(nil)

type ValidationResult struct {
	License *model.License
	Device  *model.DeviceActivation
}

// ValidationUseCase answers "may this device run right now". It never takes
// or frees a slot and runs without the license row lock.
type ValidationUseCase interface {
	Validate(ctx context.Context, licenseKey, deviceID string) (*ValidationResult, error)
}

type validationUC struct {
	licenses repository.LicenseRepository
	devices  repository.DeviceRepository
	events   adapter.EventPublisher
	cfg      LicenseSettings
	log      *zerolog.Logger
	clock    func() time.Time
}

func NewValidationUseCase(
	licenses repository.LicenseRepository,
	devices repository.DeviceRepository,
	events adapter.EventPublisher,
	cfg LicenseSettings,
	logger *zerolog.Logger,
) *validationUC {
	l := logger.With().Str("component", "validation").Logger()
	return &validationUC{
		licenses: licenses,
		devices:  devices,
		events:   orNopPublisher(events),
		cfg:      cfg.withDefaults(),
		log:      &l,
		clock:    time.Now,
	}
}

func (uc *validationUC) Validate(ctx context.Context, licenseKey, deviceID string) (res *ValidationResult, err error) {
	defer logging.TraceDuration(uc.log, "ValidationUC.Validate")()
	defer func() { metrics.IncValidation(resultLabel(err)) }()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if deviceID, err = checkDeviceID(deviceID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	lic, err := uc.licenses.FindByKey(ctx, repository.NoTX, key)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "validate", err)
	}

	now := uc.clock()
	if lic.NeedsExpiry(now) {
		changed, err := uc.licenses.UpdateStatus(ctx, repository.NoTX, key, model.LicenseStatusExpired, now, model.LicenseStatusActive)
		if err != nil {
			return nil, storeErr(ctx, uc.log, "validate", err)
		}
		if changed {
			metrics.AddLicensesExpired("lazy", 1)
			publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventLicenseExpired, LicenseKey: key, OccurredAt: now})
		}
		return nil, domain.ErrLicenseExpired
	}
	if err := lic.CheckUsable(); err != nil {
		return nil, err
	}

	dev, err := uc.devices.Find(ctx, repository.NoTX, key, deviceID)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "validate", err)
	}
	if dev.Status != model.DeviceStatusActive {
		return nil, domain.ErrDeviceNotFound
	}
	// Touch re-checks device and license status in the store, so a revocation
	// hidden by a stale cached license is still rejected here.
	if err := uc.devices.Touch(ctx, repository.NoTX, key, deviceID, now); err != nil {
		if errors.Is(err, domain.ErrStatusRejected) || errors.Is(err, domain.ErrLicenseNotFound) {
			if ev, ok := uc.licenses.(repository.CacheEvicter); ok {
				ev.Evict(ctx, key)
			}
		}
		return nil, storeErr(ctx, uc.log, "validate", err)
	}
	dev.LastSeenAt = now
	return &ValidationResult{License: lic, Device: dev}, nil
}
