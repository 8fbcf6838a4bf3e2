package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"tw-license-service/internal/domain"
)

type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusExpired LicenseStatus = "expired"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

// License is the canonical license record. Projections for each audience live in views.go.
type License struct {
	ID              string // UUID
	Key             string
	OwnerID         string
	ProductID       string
	OrderID         *string // purchase that produced it; nil for manual grants
	Status          LicenseStatus
	ActivationLimit int
	ExpiresAt       *time.Time // nil means perpetual
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewLicense creates an active license. The key is assumed to be generated and checked by the caller.
func NewLicense(key, ownerID, productID string, limit int, expiresAt *time.Time, orderID *string, now time.Time) (*License, error) {
	if key == "" || strings.TrimSpace(ownerID) == "" || strings.TrimSpace(productID) == "" || limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, domain.ErrInvalidArgument
	}
	if orderID != nil && strings.TrimSpace(*orderID) == "" {
		orderID = nil
	}
	return &License{
		ID:              uuid.NewString(),
		Key:             key,
		OwnerID:         ownerID,
		ProductID:       productID,
		OrderID:         orderID,
		Status:          LicenseStatusActive,
		ActivationLimit: limit,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsExpiredAt reports whether the expiry date has passed, regardless of the stored status.
func (l *License) IsExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// NeedsExpiry is true for an active license whose expiry date has passed.
func (l *License) NeedsExpiry(now time.Time) bool {
	return l.Status == LicenseStatusActive && l.IsExpiredAt(now)
}

// CheckUsable maps a non-active status to its rejection error.
func (l *License) CheckUsable() error {
	switch l.Status {
	case LicenseStatusActive:
		return nil
	case LicenseStatusExpired:
		return domain.ErrLicenseExpired
	case LicenseStatusRevoked:
		return domain.ErrLicenseRevoked
	default:
		return domain.ErrInvalidTransition
	}
}
