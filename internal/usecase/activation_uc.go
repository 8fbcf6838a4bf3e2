// File: internal/usecase/activation_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/infra/metrics"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationResult is returned by a successful activation.
type ActivationResult struct {
	License              *model.License
	Device               *model.DeviceActivation
	RemainingActivations int
	AlreadyActive        bool
}

// ActivationUseCase binds devices to licenses and manages their lifecycle.
// Every write runs under the license row lock, so the number of devices
// holding a slot never exceeds the activation limit.
type ActivationUseCase interface {
	Activate(ctx context.Context, licenseKey, deviceID string, info model.DeviceInfo) (*ActivationResult, error)
	ListDevices(ctx context.Context, licenseKey, ownerID string) ([]*model.DeviceActivation, error)
	RenameDevice(ctx context.Context, licenseKey, deviceID, ownerID, name string) (*model.DeviceActivation, error)
	RevokeDevice(ctx context.Context, licenseKey, deviceID, ownerID string) error
	DeactivateDevice(ctx context.Context, licenseKey, deviceID string) error
	RevokeDeviceAsAdmin(ctx context.Context, licenseKey, deviceID string) error
}

type activationUC struct {
	licenses repository.LicenseRepository
	devices  repository.DeviceRepository
	tm       repository.TransactionManager
	events   adapter.EventPublisher
	cfg      LicenseSettings
	log      *zerolog.Logger
	clock    func() time.Time
}

func NewActivationUseCase(
	licenses repository.LicenseRepository,
	devices repository.DeviceRepository,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	cfg LicenseSettings,
	logger *zerolog.Logger,
) *activationUC {
	l := logger.With().Str("component", "activation").Logger()
	return &activationUC{
		licenses: licenses,
		devices:  devices,
		tm:       tm,
		events:   orNopPublisher(events),
		cfg:      cfg.withDefaults(),
		log:      &l,
		clock:    time.Now,
	}
}

var txReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func (uc *activationUC) Activate(ctx context.Context, licenseKey, deviceID string, info model.DeviceInfo) (res *ActivationResult, err error) {
	defer logging.TraceDuration(uc.log, "ActivationUC.Activate")()
	defer func() {
		switch {
		case err != nil:
			metrics.IncActivation(resultLabel(err))
		case res.AlreadyActive:
			metrics.IncActivation("already_active")
		default:
			metrics.IncActivation("activated")
		}
	}()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if deviceID, err = checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	info.Name = strings.TrimSpace(info.Name)
	info.Type = strings.TrimSpace(info.Type)
	if err := model.ValidateDeviceInfo(info); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	var expiredNow bool
	txErr := uc.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		lic, err := uc.licenses.FindByKeyForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		if lic.NeedsExpiry(now) {
			// Commit the transition, then reject.
			if _, err := uc.licenses.UpdateStatus(ctx, tx, key, model.LicenseStatusExpired, now, model.LicenseStatusActive); err != nil {
				return err
			}
			expiredNow = true
			return nil
		}
		if err := lic.CheckUsable(); err != nil {
			return err
		}

		devices, err := uc.devices.ListByLicense(ctx, tx, key)
		if err != nil {
			return err
		}
		held := model.CountHeld(devices)
		var existing *model.DeviceActivation
		for _, d := range devices {
			if d.DeviceID == deviceID {
				existing = d
				break
			}
		}

		if existing != nil && existing.Status == model.DeviceStatusActive {
			if err := uc.devices.Touch(ctx, tx, key, deviceID, now); err != nil {
				return err
			}
			existing.LastSeenAt = now
			res = &ActivationResult{
				License:              lic,
				Device:               existing,
				RemainingActivations: max0(lic.ActivationLimit - held),
				AlreadyActive:        true,
			}
			return nil
		}

		dev := &model.DeviceActivation{
			LicenseKey: key,
			DeviceID:   deviceID,
			DeviceName: info.Name,
			DeviceType: info.Type,
			Status:     model.DeviceStatusActive,
			LastSeenAt: now,
			UpdatedAt:  now,
		}
		heldAfter := held
		if existing != nil && existing.Status == model.DeviceStatusInactive {
			// Reactivation reuses the slot it still holds.
			dev.ID = existing.ID
			dev.FirstActivatedAt = existing.FirstActivatedAt
		} else {
			if held >= lic.ActivationLimit {
				return &domain.ActivationLimitError{Limit: lic.ActivationLimit, Held: held}
			}
			dev.ID = model.NewActivationID(now)
			dev.FirstActivatedAt = now
			heldAfter++
		}
		if existing != nil {
			dev.ID = existing.ID
			if dev.DeviceName == "" {
				dev.DeviceName = existing.DeviceName
			}
			if dev.DeviceType == "" {
				dev.DeviceType = existing.DeviceType
			}
		}

		if err := uc.devices.Upsert(ctx, tx, dev); err != nil {
			return err
		}
		res = &ActivationResult{
			License:              lic,
			Device:               dev,
			RemainingActivations: max0(lic.ActivationLimit - heldAfter),
		}
		return nil
	})
	if txErr != nil {
		return nil, storeErr(ctx, uc.log, "activate", txErr)
	}

	if expiredNow {
		metrics.AddLicensesExpired("lazy", 1)
		publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventLicenseExpired, LicenseKey: key, OccurredAt: now})
		return nil, domain.ErrLicenseExpired
	}

	if !res.AlreadyActive {
		logging.With(ctx, uc.log).Info().
			Str("license", logging.Redact(key, uc.cfg.Dev)).
			Str("device_id", deviceID).
			Int("remaining", res.RemainingActivations).
			Msg("device activated")
		publish(ctx, uc.log, uc.events, model.LicenseEvent{
			Type:       model.EventDeviceActivated,
			LicenseKey: key,
			OwnerID:    res.License.OwnerID,
			DeviceID:   deviceID,
			OccurredAt: now,
		})
	}
	return res, nil
}

func (uc *activationUC) ListDevices(ctx context.Context, licenseKey, ownerID string) ([]*model.DeviceActivation, error) {
	defer logging.TraceDuration(uc.log, "ActivationUC.ListDevices")()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	devices, err := uc.devices.ListByLicenseAndOwner(ctx, repository.NoTX, key, ownerID)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "list devices", err)
	}
	return devices, nil
}

func (uc *activationUC) RenameDevice(ctx context.Context, licenseKey, deviceID, ownerID, name string) (*model.DeviceActivation, error) {
	defer logging.TraceDuration(uc.log, "ActivationUC.RenameDevice")()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if deviceID, err = checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidDeviceName
	}
	if err := model.ValidateDeviceInfo(model.DeviceInfo{Name: name}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	var out *model.DeviceActivation
	err = uc.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.lockOwned(ctx, tx, key, ownerID); err != nil {
			return err
		}
		if err := uc.devices.Rename(ctx, tx, key, deviceID, name, now); err != nil {
			return err
		}
		d, err := uc.devices.Find(ctx, tx, key, deviceID)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, storeErr(ctx, uc.log, "rename device", err)
	}
	metrics.IncDeviceChange("rename")
	publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventDeviceRenamed, LicenseKey: key, OwnerID: ownerID, DeviceID: deviceID, OccurredAt: now})
	return out, nil
}

func (uc *activationUC) RevokeDevice(ctx context.Context, licenseKey, deviceID, ownerID string) error {
	defer logging.TraceDuration(uc.log, "ActivationUC.RevokeDevice")()
	return uc.revoke(ctx, licenseKey, deviceID, &ownerID)
}

func (uc *activationUC) RevokeDeviceAsAdmin(ctx context.Context, licenseKey, deviceID string) error {
	defer logging.TraceDuration(uc.log, "ActivationUC.RevokeDeviceAsAdmin")()
	return uc.revoke(ctx, licenseKey, deviceID, nil)
}

// revoke frees the device's slot. Revoking an already revoked device succeeds.
// A nil ownerID skips the ownership check.
func (uc *activationUC) revoke(ctx context.Context, licenseKey, deviceID string, ownerID *string) error {
	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return err
	}
	if deviceID, err = checkDeviceID(deviceID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	var changed bool
	var owner string
	err = uc.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		var lic *model.License
		var err error
		if ownerID != nil {
			lic, err = uc.lockOwned(ctx, tx, key, *ownerID)
		} else {
			lic, err = uc.licenses.FindByKeyForUpdate(ctx, tx, key)
		}
		if err != nil {
			return err
		}
		owner = lic.OwnerID

		d, err := uc.devices.Find(ctx, tx, key, deviceID)
		if err != nil {
			return err
		}
		if d.Status == model.DeviceStatusRevoked {
			return nil
		}
		changed = true
		return uc.devices.SetStatus(ctx, tx, key, deviceID, model.DeviceStatusRevoked, now)
	})
	if err != nil {
		return storeErr(ctx, uc.log, "revoke device", err)
	}
	if changed {
		metrics.IncDeviceChange("revoke")
		logging.With(ctx, uc.log).Info().
			Str("license", logging.Redact(key, uc.cfg.Dev)).
			Str("device_id", deviceID).
			Bool("admin", ownerID == nil).
			Msg("device revoked")
		publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventDeviceRevoked, LicenseKey: key, OwnerID: owner, DeviceID: deviceID, OccurredAt: now})
	}
	return nil
}

// DeactivateDevice parks an active device. It keeps its slot and can be reactivated.
func (uc *activationUC) DeactivateDevice(ctx context.Context, licenseKey, deviceID string) error {
	defer logging.TraceDuration(uc.log, "ActivationUC.DeactivateDevice")()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return err
	}
	if deviceID, err = checkDeviceID(deviceID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	var owner string
	err = uc.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		lic, err := uc.licenses.FindByKeyForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		owner = lic.OwnerID
		d, err := uc.devices.Find(ctx, tx, key, deviceID)
		if err != nil {
			return err
		}
		if d.Status != model.DeviceStatusActive {
			return domain.ErrInvalidTransition
		}
		return uc.devices.SetStatus(ctx, tx, key, deviceID, model.DeviceStatusInactive, now)
	})
	if err != nil {
		return storeErr(ctx, uc.log, "deactivate device", err)
	}
	metrics.IncDeviceChange("deactivate")
	publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventDeviceDeactivated, LicenseKey: key, OwnerID: owner, DeviceID: deviceID, OccurredAt: now})
	return nil
}

// lockOwned locks the license row and hides licenses owned by someone else.
func (uc *activationUC) lockOwned(ctx context.Context, tx repository.Tx, key, ownerID string) (*model.License, error) {
	lic, err := uc.licenses.FindByKeyForUpdate(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || lic.OwnerID != ownerID {
		return nil, domain.ErrLicenseNotFound
	}
	return lic, nil
}
