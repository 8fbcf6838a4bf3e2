// File: internal/usecase/issuance_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/licensekey"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/logging"
	"tw-license-service/internal/infra/metrics"
)

// Compile-time check
var _ IssuanceUseCase = (*issuanceUC)(nil)

// IssueRequest describes a license grant. OrderID makes the call idempotent.
type IssueRequest struct {
	OwnerID         string
	ProductID       string
	ActivationLimit int // 0 selects the configured default
	ExpiresAt       *time.Time
	OrderID         string
}

type IssueResult struct {
	License *model.License
	Created bool // false when the order already had a license
}

type LicenseDetails struct {
	License *model.License
	Devices []*model.DeviceActivation
}

// IssuanceUseCase covers the license side of the lifecycle: grant, lookup,
// revoke and the expiry sweep.
type IssuanceUseCase interface {
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
	RevokeLicense(ctx context.Context, licenseKey string) (*model.License, error)
	GetLicense(ctx context.Context, licenseKey string) (*LicenseDetails, error)
	ListOwnerLicenses(ctx context.Context, ownerID string) ([]*model.License, error)
	ExpireDue(ctx context.Context) (int, error)
}

// KeyGenerator returns a fresh candidate license key.
type KeyGenerator func() (string, error)

type issuanceUC struct {
	licenses repository.LicenseRepository
	devices  repository.DeviceRepository
	locker   adapter.Locker // optional
	events   adapter.EventPublisher
	gen      KeyGenerator
	cfg      LicenseSettings
	log      *zerolog.Logger
	clock    func() time.Time
}

func NewIssuanceUseCase(
	licenses repository.LicenseRepository,
	devices repository.DeviceRepository,
	locker adapter.Locker,
	events adapter.EventPublisher,
	cfg LicenseSettings,
	logger *zerolog.Logger,
) *issuanceUC {
	l := logger.With().Str("component", "issuance").Logger()
	return &issuanceUC{
		licenses: licenses,
		devices:  devices,
		locker:   locker,
		events:   orNopPublisher(events),
		gen:      licensekey.Generate,
		cfg:      cfg.withDefaults(),
		log:      &l,
		clock:    time.Now,
	}
}

const orderLockTTL = 10 * time.Second

func (uc *issuanceUC) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.Issue")()

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OwnerID == "" || req.ProductID == "" || req.ActivationLimit < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if req.ActivationLimit == 0 {
		req.ActivationLimit = uc.cfg.DefaultActivationLimit
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	var orderID *string
	if req.OrderID != "" {
		orderID = &req.OrderID
		if uc.locker != nil {
			// The unique order constraint still guards correctness when the lock is unavailable.
			token, err := uc.locker.TryLock(ctx, "order:"+req.OrderID, orderLockTTL)
			if err != nil {
				logging.With(ctx, uc.log).Warn().Err(err).Str("order_id", req.OrderID).Msg("order lock unavailable; relying on unique constraint")
			} else {
				defer func() {
					if err := uc.locker.Unlock(context.Background(), "order:"+req.OrderID, token); err != nil {
						uc.log.Warn().Err(err).Msg("release order lock")
					}
				}()
			}
		}
		if existing, err := uc.existingForOrder(ctx, req.OrderID); existing != nil || err != nil {
			if err != nil {
				return nil, err
			}
			return &IssueResult{License: existing}, nil
		}
	}

	now := uc.clock()
	for attempt := 1; attempt <= uc.cfg.KeyRetryLimit; attempt++ {
		key, err := uc.gen()
		if err != nil {
			return nil, err
		}
		lic, err := model.NewLicense(key, req.OwnerID, req.ProductID, req.ActivationLimit, req.ExpiresAt, orderID, now)
		if err != nil {
			return nil, err
		}

		err = uc.licenses.Create(ctx, repository.NoTX, lic)
		switch {
		case err == nil:
			metrics.IncLicenseIssued()
			logging.With(ctx, uc.log).Info().
				Str("license", logging.Redact(lic.Key, uc.cfg.Dev)).
				Str("owner_id", lic.OwnerID).
				Int("limit", lic.ActivationLimit).
				Msg("license issued")
			publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventLicenseIssued, LicenseKey: lic.Key, OwnerID: lic.OwnerID, OccurredAt: now})
			return &IssueResult{License: lic, Created: true}, nil
		case errors.Is(err, domain.ErrDuplicateKey):
			uc.log.Warn().Int("attempt", attempt).Msg("license key collision; regenerating")
			continue
		case errors.Is(err, domain.ErrAlreadyExists) && orderID != nil:
			// Lost a race for the same order.
			existing, ferr := uc.existingForOrder(ctx, req.OrderID)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return &IssueResult{License: existing}, nil
			}
			return nil, storeErr(ctx, uc.log, "issue", err)
		default:
			return nil, storeErr(ctx, uc.log, "issue", err)
		}
	}
	uc.log.Error().Int("attempts", uc.cfg.KeyRetryLimit).Msg("license key generation exhausted")
	return nil, domain.ErrKeyGenerationExhausted
}

func (uc *issuanceUC) existingForOrder(ctx context.Context, orderID string) (*model.License, error) {
	lic, err := uc.licenses.FindByOrderID(ctx, repository.NoTX, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(ctx, uc.log, "issue", err)
	}
	return lic, nil
}

// RevokeLicense is idempotent on an already revoked license.
func (uc *issuanceUC) RevokeLicense(ctx context.Context, licenseKey string) (*model.License, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.RevokeLicense")()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	changed, err := uc.licenses.UpdateStatus(ctx, repository.NoTX, key, model.LicenseStatusRevoked, now, model.LicenseStatusActive, model.LicenseStatusExpired)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "revoke license", err)
	}
	lic, err := uc.licenses.FindByKey(ctx, repository.NoTX, key)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "revoke license", err)
	}
	if changed {
		logging.With(ctx, uc.log).Info().Str("license", logging.Redact(key, uc.cfg.Dev)).Msg("license revoked")
		publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventLicenseRevoked, LicenseKey: key, OwnerID: lic.OwnerID, OccurredAt: now})
	}
	return lic, nil
}

func (uc *issuanceUC) GetLicense(ctx context.Context, licenseKey string) (*LicenseDetails, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.GetLicense")()

	key, err := uc.cfg.checkKey(licenseKey)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	lic, err := uc.licenses.FindByKey(ctx, repository.NoTX, key)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "get license", err)
	}
	devices, err := uc.devices.ListByLicense(ctx, repository.NoTX, key)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "get license", err)
	}
	return &LicenseDetails{License: lic, Devices: devices}, nil
}

func (uc *issuanceUC) ListOwnerLicenses(ctx context.Context, ownerID string) ([]*model.License, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.ListOwnerLicenses")()

	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	out, err := uc.licenses.ListByOwner(ctx, repository.NoTX, ownerID)
	if err != nil {
		return nil, storeErr(ctx, uc.log, "list licenses", err)
	}
	return out, nil
}

// ExpireDue moves every active license past its expiry date to expired.
func (uc *issuanceUC) ExpireDue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.ExpireDue")()

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StoreTimeout)
	defer cancel()

	now := uc.clock()
	keys, err := uc.licenses.ExpireDue(ctx, repository.NoTX, now)
	if err != nil {
		return 0, storeErr(ctx, uc.log, "expire licenses", err)
	}
	metrics.AddLicensesExpired("sweep", len(keys))
	for _, k := range keys {
		publish(ctx, uc.log, uc.events, model.LicenseEvent{Type: model.EventLicenseExpired, LicenseKey: k, OccurredAt: now})
	}
	return len(keys), nil
}
