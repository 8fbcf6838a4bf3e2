//go:build !integration

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
)

func newLicense(key, owner string, limit int) *model.License {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return &model.License{ID: key + "-id", Key: key, OwnerID: owner, ProductID: "tw-mac", Status: model.LicenseStatusActive, ActivationLimit: limit, CreatedAt: now, UpdatedAt: now}
}

func TestStore_Licenses(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject duplicate keys and orders", func(t *testing.T) {
		s := NewStore()
		order := "order-1"
		l := newLicense("TW-AAAA-BBBB-CCCC-DDDD", "owner-1", 1)
		l.OrderID = &order
		if err := s.Create(ctx, nil, l); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.Create(ctx, nil, newLicense("TW-AAAA-BBBB-CCCC-DDDD", "owner-2", 1)); !errors.Is(err, domain.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
		other := newLicense("TW-EEEE-BBBB-CCCC-DDDD", "owner-2", 1)
		other.OrderID = &order
		if err := s.Create(ctx, nil, other); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		got, err := s.FindByOrderID(ctx, nil, order)
		if err != nil || got.Key != l.Key {
			t.Errorf("expected lookup by order, got %v %v", got, err)
		}
	})

	t.Run("should compare and set status", func(t *testing.T) {
		s := NewStore()
		_ = s.Create(ctx, nil, newLicense("TW-AAAA-BBBB-CCCC-DDDD", "owner-1", 1))
		now := time.Now()
		ok, err := s.UpdateStatus(ctx, nil, "TW-AAAA-BBBB-CCCC-DDDD", model.LicenseStatusRevoked, now, model.LicenseStatusExpired)
		if err != nil || ok {
			t.Fatalf("expected no change from a mismatched status, got ok=%v err=%v", ok, err)
		}
		ok, err = s.UpdateStatus(ctx, nil, "TW-AAAA-BBBB-CCCC-DDDD", model.LicenseStatusExpired, now, model.LicenseStatusActive)
		if err != nil || !ok {
			t.Fatalf("expected change, got ok=%v err=%v", ok, err)
		}
		if _, err := s.UpdateStatus(ctx, nil, "TW-NOPE-BBBB-CCCC-DDDD", model.LicenseStatusExpired, now); !errors.Is(err, domain.ErrLicenseNotFound) {
			t.Errorf("expected ErrLicenseNotFound, got %v", err)
		}
	})

	t.Run("should expire only active licenses past their date", func(t *testing.T) {
		s := NewStore()
		now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)
		a := newLicense("TW-AAAA-AAAA-AAAA-AAAA", "o", 1)
		a.ExpiresAt = &past
		b := newLicense("TW-BBBB-BBBB-BBBB-BBBB", "o", 1)
		b.ExpiresAt = &future
		c := newLicense("TW-CCCC-CCCC-CCCC-CCCC", "o", 1)
		c.ExpiresAt = &past
		c.Status = model.LicenseStatusRevoked
		for _, l := range []*model.License{a, b, c} {
			_ = s.Create(ctx, nil, l)
		}
		keys, err := s.ExpireDue(ctx, nil, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if len(keys) != 1 || keys[0] != a.Key {
			t.Errorf("expected only %s expired, got %v", a.Key, keys)
		}
	})

	t.Run("should require a transaction for locking reads", func(t *testing.T) {
		s := NewStore()
		if _, err := s.FindByKeyForUpdate(ctx, nil, "TW-AAAA-BBBB-CCCC-DDDD"); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Errorf("expected ErrInvalidExecContext, got %v", err)
		}
		if _, err := s.FindByKey(ctx, "not-a-tx", "x"); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Errorf("expected ErrInvalidExecContext for a foreign tx, got %v", err)
		}
	})
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("should roll back every write when fn fails", func(t *testing.T) {
		s := NewStore()
		_ = s.Create(ctx, nil, newLicense("TW-AAAA-BBBB-CCCC-DDDD", "owner-1", 2))
		boom := errors.New("boom")
		err := s.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			now := time.Now()
			if err := s.Upsert(ctx, tx, &model.DeviceActivation{ID: "d1", LicenseKey: "TW-AAAA-BBBB-CCCC-DDDD", DeviceID: "dev-001", Status: model.DeviceStatusActive, FirstActivatedAt: now, LastSeenAt: now}); err != nil {
				return err
			}
			if _, err := s.UpdateStatus(ctx, tx, "TW-AAAA-BBBB-CCCC-DDDD", model.LicenseStatusRevoked, now); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		devs, _ := s.ListByLicense(ctx, nil, "TW-AAAA-BBBB-CCCC-DDDD")
		if len(devs) != 0 {
			t.Errorf("expected device write rolled back, got %d devices", len(devs))
		}
		l, _ := s.FindByKey(ctx, nil, "TW-AAAA-BBBB-CCCC-DDDD")
		if l.Status != model.LicenseStatusActive {
			t.Errorf("expected status rolled back, got %s", l.Status)
		}
	})

	t.Run("should refuse a cancelled context", func(t *testing.T) {
		s := NewStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := s.WithTx(cctx, pgx.TxOptions{}, func(context.Context, repository.Tx) error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) || called {
			t.Errorf("expected context.Canceled without calling fn, got %v called=%v", err, called)
		}
	})

	t.Run("should return injected failures", func(t *testing.T) {
		s := NewStore()
		down := errors.New("down")
		s.FailWith(down)
		if _, err := s.FindByKey(ctx, nil, "x"); !errors.Is(err, down) {
			t.Errorf("expected injected failure, got %v", err)
		}
		s.FailWith(nil)
		if _, err := s.FindByKey(ctx, nil, "x"); !errors.Is(err, domain.ErrLicenseNotFound) {
			t.Errorf("expected not found after clearing, got %v", err)
		}
	})
}

func TestStore_Devices(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := "TW-AAAA-BBBB-CCCC-DDDD"
	_ = s.Create(ctx, nil, newLicense(key, "owner-1", 2))
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, nil, &model.DeviceActivation{ID: "first", LicenseKey: key, DeviceID: "dev-001", DeviceName: "Mac", Status: model.DeviceStatusActive, FirstActivatedAt: now, LastSeenAt: now}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	t.Run("should keep the record id across upserts", func(t *testing.T) {
		d := &model.DeviceActivation{ID: "second", LicenseKey: key, DeviceID: "dev-001", Status: model.DeviceStatusActive, FirstActivatedAt: now, LastSeenAt: now}
		if err := s.Upsert(ctx, nil, d); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		got, _ := s.Find(ctx, nil, key, "dev-001")
		if got.ID != "first" || d.ID != "first" {
			t.Errorf("expected id to stay 'first', got stored=%s arg=%s", got.ID, d.ID)
		}
	})

	t.Run("should scope listing to the owner", func(t *testing.T) {
		if _, err := s.ListByLicenseAndOwner(ctx, nil, key, "intruder"); !errors.Is(err, domain.ErrLicenseNotFound) {
			t.Errorf("expected ErrLicenseNotFound for a foreign owner, got %v", err)
		}
		devs, err := s.ListByLicenseAndOwner(ctx, nil, key, "owner-1")
		if err != nil || len(devs) != 1 {
			t.Errorf("expected one device, got %d err=%v", len(devs), err)
		}
	})

	t.Run("should only touch active devices", func(t *testing.T) {
		later := now.Add(time.Hour)
		if err := s.Touch(ctx, nil, key, "dev-001", later); err != nil {
			t.Fatalf("touch: %v", err)
		}
		if err := s.SetStatus(ctx, nil, key, "dev-001", model.DeviceStatusRevoked, later); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if err := s.Touch(ctx, nil, key, "dev-001", later); !errors.Is(err, domain.ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound on a revoked device, got %v", err)
		}
		if err := s.Rename(ctx, nil, key, "dev-001", "x", later); !errors.Is(err, domain.ErrDeviceNotFound) {
			t.Errorf("expected rename of a revoked device to fail, got %v", err)
		}
		got, _ := s.Find(ctx, nil, key, "dev-001")
		if got.RevokedAt == nil || !got.RevokedAt.Equal(later) {
			t.Errorf("expected revoked_at to be stamped, got %v", got.RevokedAt)
		}
	})

	t.Run("should report the license state when touching under a closed license", func(t *testing.T) {
		const other = "TW-EEEE-FFFF-GGGG-HHHH"
		_ = s.Create(ctx, nil, newLicense(other, "owner-1", 2))
		if err := s.Upsert(ctx, nil, &model.DeviceActivation{ID: "t", LicenseKey: other, DeviceID: "dev-009", Status: model.DeviceStatusActive, FirstActivatedAt: now, LastSeenAt: now}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := s.UpdateStatus(ctx, nil, other, model.LicenseStatusRevoked, now); err != nil {
			t.Fatalf("revoke license: %v", err)
		}
		if err := s.Touch(ctx, nil, other, "dev-009", now.Add(time.Minute)); !errors.Is(err, domain.ErrLicenseRevoked) {
			t.Errorf("expected ErrLicenseRevoked, got %v", err)
		}
		got, _ := s.Find(ctx, nil, other, "dev-009")
		if !got.LastSeenAt.Equal(now) {
			t.Errorf("expected last seen untouched, got %s", got.LastSeenAt)
		}
	})

	t.Run("should refuse devices for unknown licenses", func(t *testing.T) {
		err := s.Upsert(ctx, nil, &model.DeviceActivation{LicenseKey: "TW-ZZZZ-ZZZZ-ZZZZ-ZZZZ", DeviceID: "x"})
		if !errors.Is(err, domain.ErrLicenseNotFound) {
			t.Errorf("expected ErrLicenseNotFound, got %v", err)
		}
	})
}
