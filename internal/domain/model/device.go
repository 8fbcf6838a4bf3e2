package model

import (
	"crypto/rand"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"tw-license-service/internal/domain"
)

type DeviceStatus string

const (
	DeviceStatusActive   DeviceStatus = "active"
	DeviceStatusInactive DeviceStatus = "inactive"
	DeviceStatusRevoked  DeviceStatus = "revoked"
)

const (
	MaxDeviceIDLen   = 64
	MaxDeviceNameLen = 100
	MaxDeviceTypeLen = 50
)

var deviceIDRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// DeviceInfo is the client-reported description of a machine.
type DeviceInfo struct {
	Name string
	Type string
}

// DeviceActivation binds one device to one license. (LicenseKey, DeviceID) is unique.
type DeviceActivation struct {
	ID               string // ULID
	LicenseKey       string
	DeviceID         string
	DeviceName       string
	DeviceType       string
	Status           DeviceStatus
	FirstActivatedAt time.Time
	LastSeenAt       time.Time
	UpdatedAt        time.Time
	RevokedAt        *time.Time
}

// HoldsSlot reports whether the device counts against the activation limit.
// Inactive devices keep their slot so they can be reactivated without a free one.
func (d *DeviceActivation) HoldsSlot() bool {
	return d.Status == DeviceStatusActive || d.Status == DeviceStatusInactive
}

// ValidDeviceID checks the character set and an upper bound of 64.
func ValidDeviceID(id string) bool {
	return len(id) <= MaxDeviceIDLen && deviceIDRe.MatchString(id)
}

// ValidateDeviceInfo enforces the stored length limits.
func ValidateDeviceInfo(info DeviceInfo) error {
	if utf8.RuneCountInString(info.Name) > MaxDeviceNameLen {
		return domain.ErrInvalidDeviceName
	}
	if utf8.RuneCountInString(info.Type) > MaxDeviceTypeLen {
		return domain.ErrInvalidArgument
	}
	return nil
}

// CountHeld returns how many devices occupy a slot.
func CountHeld(devices []*DeviceActivation) int {
	n := 0
	for _, d := range devices {
		if d.HoldsSlot() {
			n++
		}
	}
	return n
}

// NewActivationID returns a lexically sortable id for a device activation.
func NewActivationID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
