package model

import "time"

type LicenseEventType string

const (
	EventLicenseIssued     LicenseEventType = "license.issued"
	EventLicenseRevoked    LicenseEventType = "license.revoked"
	EventLicenseExpired    LicenseEventType = "license.expired"
	EventDeviceActivated   LicenseEventType = "device.activated"
	EventDeviceRenamed     LicenseEventType = "device.renamed"
	EventDeviceRevoked     LicenseEventType = "device.revoked"
	EventDeviceDeactivated LicenseEventType = "device.deactivated"
)

// LicenseEvent is published after a committed state change.
type LicenseEvent struct {
	Type       LicenseEventType `json:"type"`
	LicenseKey string           `json:"license_key"`
	OwnerID    string           `json:"owner_id,omitempty"`
	DeviceID   string           `json:"device_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
