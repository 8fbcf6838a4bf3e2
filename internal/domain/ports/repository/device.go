package repository

import (
	"context"
	"time"

	"tw-license-service/internal/domain/model"
)

// DeviceRepository is the port for device activations. Writes are expected to
// run inside a transaction that holds the license row lock.
type DeviceRepository interface {
	Find(ctx context.Context, tx Tx, licenseKey, deviceID string) (*model.DeviceActivation, error)
	ListByLicense(ctx context.Context, tx Tx, licenseKey string) ([]*model.DeviceActivation, error)
	// ListByLicenseAndOwner returns domain.ErrLicenseNotFound when the license
	// does not exist or belongs to someone else.
	ListByLicenseAndOwner(ctx context.Context, tx Tx, licenseKey, ownerID string) ([]*model.DeviceActivation, error)
	// Upsert writes the record keyed by (LicenseKey, DeviceID).
	Upsert(ctx context.Context, tx Tx, d *model.DeviceActivation) error
	Rename(ctx context.Context, tx Tx, licenseKey, deviceID, name string, now time.Time) error
	SetStatus(ctx context.Context, tx Tx, licenseKey, deviceID string, status model.DeviceStatus, now time.Time) error
	// Touch bumps LastSeenAt only while both the device and its license are
	// active. Otherwise it reports the license state (domain.ErrLicenseRevoked,
	// domain.ErrLicenseExpired, domain.ErrLicenseNotFound) or domain.ErrDeviceNotFound.
	Touch(ctx context.Context, tx Tx, licenseKey, deviceID string, now time.Time) error
}
