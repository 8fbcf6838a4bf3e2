package memory

import (
	"context"
	"sort"
	"time"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
)

func (s *Store) Find(_ context.Context, tx repository.Tx, licenseKey, deviceID string) (*model.DeviceActivation, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[licenseKey][deviceID]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return &d, nil
}

func (s *Store) ListByLicense(_ context.Context, tx repository.Tx, licenseKey string) ([]*model.DeviceActivation, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(licenseKey), nil
}

func (s *Store) ListByLicenseAndOwner(_ context.Context, tx repository.Tx, licenseKey, ownerID string) ([]*model.DeviceActivation, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.licenses[licenseKey]
	if !ok || l.OwnerID != ownerID {
		return nil, domain.ErrLicenseNotFound
	}
	return s.listLocked(licenseKey), nil
}

func (s *Store) listLocked(licenseKey string) []*model.DeviceActivation {
	out := make([]*model.DeviceActivation, 0, len(s.devices[licenseKey]))
	for _, d := range s.devices[licenseKey] {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstActivatedAt.Equal(out[j].FirstActivatedAt) {
			return out[i].FirstActivatedAt.Before(out[j].FirstActivatedAt)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// Upsert keeps the original record id when the (license, device) pair already exists.
func (s *Store) Upsert(_ context.Context, tx repository.Tx, d *model.DeviceActivation) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	done, err := s.writeScope(tx)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[d.LicenseKey]; !ok {
		return domain.ErrLicenseNotFound
	}
	m, ok := s.devices[d.LicenseKey]
	if !ok {
		m = make(map[string]model.DeviceActivation)
		s.devices[d.LicenseKey] = m
	}
	rec := *d
	if prev, ok := m[d.DeviceID]; ok {
		rec.ID = prev.ID
		d.ID = prev.ID
	}
	m[d.DeviceID] = rec
	return nil
}

func (s *Store) Rename(_ context.Context, tx repository.Tx, licenseKey, deviceID, name string, now time.Time) error {
	return s.mutateDevice(tx, licenseKey, deviceID, func(d *model.DeviceActivation) error {
		if d.Status == model.DeviceStatusRevoked {
			return domain.ErrDeviceNotFound
		}
		d.DeviceName = name
		d.UpdatedAt = now
		return nil
	})
}

func (s *Store) SetStatus(_ context.Context, tx repository.Tx, licenseKey, deviceID string, status model.DeviceStatus, now time.Time) error {
	return s.mutateDevice(tx, licenseKey, deviceID, func(d *model.DeviceActivation) error {
		d.Status = status
		d.UpdatedAt = now
		if status == model.DeviceStatusRevoked {
			t := now
			d.RevokedAt = &t
		} else {
			d.RevokedAt = nil
		}
		return nil
	})
}

func (s *Store) Touch(_ context.Context, tx repository.Tx, licenseKey, deviceID string, now time.Time) error {
	return s.mutateDevice(tx, licenseKey, deviceID, func(d *model.DeviceActivation) error {
		// s.mu is held by mutateDevice
		lic, ok := s.licenses[licenseKey]
		if !ok {
			return domain.ErrLicenseNotFound
		}
		switch lic.Status {
		case model.LicenseStatusRevoked:
			return domain.ErrLicenseRevoked
		case model.LicenseStatusExpired:
			return domain.ErrLicenseExpired
		}
		if d.Status != model.DeviceStatusActive {
			return domain.ErrDeviceNotFound
		}
		d.LastSeenAt = now
		return nil
	})
}

func (s *Store) mutateDevice(tx repository.Tx, licenseKey, deviceID string, fn func(d *model.DeviceActivation) error) error {
	done, err := s.writeScope(tx)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[licenseKey][deviceID]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	if err := fn(&d); err != nil {
		return err
	}
	s.devices[licenseKey][deviceID] = d
	return nil
}
