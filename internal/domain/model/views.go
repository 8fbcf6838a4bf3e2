package model

import "time"

// ClientLicenseView is what an unauthenticated client sees. No owner or internal ids.
type ClientLicenseView struct {
	Key             string     `json:"key"`
	ProductID       string     `json:"product_id"`
	Status          string     `json:"status"`
	ActivationLimit int        `json:"activation_limit"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type ClientDeviceView struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// OwnerDeviceView is used in the owner's device list.
type OwnerDeviceView struct {
	DeviceID         string    `json:"device_id"`
	DeviceName       string    `json:"device_name,omitempty"`
	DeviceType       string    `json:"device_type,omitempty"`
	Status           string    `json:"status"`
	FirstActivatedAt time.Time `json:"first_activated_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

type OwnerLicenseView struct {
	Key             string     `json:"key"`
	ProductID       string     `json:"product_id"`
	Status          string     `json:"status"`
	ActivationLimit int        `json:"activation_limit"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AdminLicenseView struct {
	ID              string     `json:"id"`
	Key             string     `json:"key"`
	OwnerID         string     `json:"owner_id"`
	ProductID       string     `json:"product_id"`
	OrderID         *string    `json:"order_id,omitempty"`
	Status          string     `json:"status"`
	ActivationLimit int        `json:"activation_limit"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type AdminDeviceView struct {
	ID               string     `json:"id"`
	LicenseKey       string     `json:"license_key"`
	DeviceID         string     `json:"device_id"`
	DeviceName       string     `json:"device_name,omitempty"`
	DeviceType       string     `json:"device_type,omitempty"`
	Status           string     `json:"status"`
	FirstActivatedAt time.Time  `json:"first_activated_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

func (l *License) ClientView() ClientLicenseView {
	return ClientLicenseView{
		Key:             l.Key,
		ProductID:       l.ProductID,
		Status:          string(l.Status),
		ActivationLimit: l.ActivationLimit,
		ExpiresAt:       l.ExpiresAt,
	}
}

func (l *License) OwnerView() OwnerLicenseView {
	return OwnerLicenseView{
		Key:             l.Key,
		ProductID:       l.ProductID,
		Status:          string(l.Status),
		ActivationLimit: l.ActivationLimit,
		ExpiresAt:       l.ExpiresAt,
		CreatedAt:       l.CreatedAt,
	}
}

func (l *License) AdminView() AdminLicenseView {
	return AdminLicenseView{
		ID:              l.ID,
		Key:             l.Key,
		OwnerID:         l.OwnerID,
		ProductID:       l.ProductID,
		OrderID:         l.OrderID,
		Status:          string(l.Status),
		ActivationLimit: l.ActivationLimit,
		ExpiresAt:       l.ExpiresAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (d *DeviceActivation) ClientView() ClientDeviceView {
	return ClientDeviceView{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType,
		LastSeenAt: d.LastSeenAt,
	}
}

func (d *DeviceActivation) OwnerView() OwnerDeviceView {
	return OwnerDeviceView{
		DeviceID:         d.DeviceID,
		DeviceName:       d.DeviceName,
		DeviceType:       d.DeviceType,
		Status:           string(d.Status),
		FirstActivatedAt: d.FirstActivatedAt,
		LastSeenAt:       d.LastSeenAt,
	}
}

func (d *DeviceActivation) AdminView() AdminDeviceView {
	return AdminDeviceView{
		ID:               d.ID,
		LicenseKey:       d.LicenseKey,
		DeviceID:         d.DeviceID,
		DeviceName:       d.DeviceName,
		DeviceType:       d.DeviceType,
		Status:           string(d.Status),
		FirstActivatedAt: d.FirstActivatedAt,
		LastSeenAt:       d.LastSeenAt,
		UpdatedAt:        d.UpdatedAt,
		RevokedAt:        d.RevokedAt,
	}
}
