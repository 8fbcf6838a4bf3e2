package repository

import (
	"context"
	"time"

	"tw-license-service/internal/domain/model"
)

// LicenseRepository is the port for license records.
type LicenseRepository interface {
	// Create inserts a license. A taken key yields domain.ErrDuplicateKey, a
	// taken order id yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, l *model.License) error
	FindByKey(ctx context.Context, tx Tx, key string) (*model.License, error)
	// FindByKeyForUpdate locks the license row until tx ends. It requires a tx.
	FindByKeyForUpdate(ctx context.Context, tx Tx, key string) (*model.License, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.License, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string) ([]*model.License, error)
	// UpdateStatus sets the status if the current one is among from (any status
	// when from is empty). It reports whether a row changed.
	UpdateStatus(ctx context.Context, tx Tx, key string, to model.LicenseStatus, now time.Time, from ...model.LicenseStatus) (bool, error)
	// ExpireDue moves every active license past its expiry date to expired and
	// returns the affected keys.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) ([]string, error)
}

// CacheEvicter is implemented by caching LicenseRepository decorators.
type CacheEvicter interface {
	Evict(ctx context.Context, keys ...string)
}
