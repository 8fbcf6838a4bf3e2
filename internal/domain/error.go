package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")

	// Input format
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidLicenseKey = fmt.Errorf("%w: license key", ErrInvalidFormat)
	ErrInvalidDeviceID   = fmt.Errorf("%w: device id", ErrInvalidFormat)
	ErrInvalidDeviceName = fmt.Errorf("%w: device name", ErrInvalidFormat)

	// Lookups
	ErrLicenseNotFound = fmt.Errorf("license %w", ErrNotFound)
	ErrDeviceNotFound  = fmt.Errorf("device %w", ErrNotFound)

	// License status
	ErrStatusRejected = errors.New("license status rejected")
	ErrLicenseExpired = fmt.Errorf("%w: license expired", ErrStatusRejected)
	ErrLicenseRevoked = fmt.Errorf("%w: license revoked", ErrStatusRejected)

	ErrActivationLimitReached = errors.New("activation limit reached")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrRateLimited            = errors.New("rate limited")

	// Storage / internal
	ErrDuplicateKey           = errors.New("license key already exists")
	ErrKeyGenerationExhausted = errors.New("license key generation exhausted")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrStoreTimeout           = fmt.Errorf("%w: timed out", ErrStoreUnavailable)
)

// ActivationLimitError reports a full license. Held counts the devices occupying a slot.
type ActivationLimitError struct {
	Limit int
	Held  int
}

func (e *ActivationLimitError) Error() string {
	return fmt.Sprintf("activation limit reached (%d of %d slots in use)", e.Held, e.Limit)
}

func (e *ActivationLimitError) Unwrap() error { return ErrActivationLimitReached }

// RemainingSlots is never negative, even if a license was shrunk below its held count.
func (e *ActivationLimitError) RemainingSlots() int {
	if r := e.Limit - e.Held; r > 0 {
		return r
	}
	return 0
}

// RateLimitError carries the window reset so callers can back off deterministically.
type RateLimitError struct {
	Operation string
	Limit     int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (limit %d), retry after %s", e.Operation, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
