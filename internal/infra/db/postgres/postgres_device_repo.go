package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
)

var _ repository.DeviceRepository = (*deviceRepo)(nil)

// NameCipher seals device names at rest. A nil cipher stores plaintext.
type NameCipher interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

const deviceColumns = `id, license_key, device_id, device_name, device_type, status, first_activated_at, last_seen_at, updated_at, revoked_at`

type deviceRepo struct {
	pool   *pgxpool.Pool
	cipher NameCipher
}

func NewDeviceRepo(pool *pgxpool.Pool, cipher NameCipher) *deviceRepo {
	return &deviceRepo{pool: pool, cipher: cipher}
}

func (r *deviceRepo) Find(ctx context.Context, tx repository.Tx, licenseKey, deviceID string) (*model.DeviceActivation, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT ` + deviceColumns + ` FROM device_activations WHERE license_key=$1 AND device_id=$2;`
	d, err := r.scan(ex.QueryRow(ctx, q, licenseKey, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeviceNotFound
	}
	return d, err
}

func (r *deviceRepo) ListByLicense(ctx context.Context, tx repository.Tx, licenseKey string) ([]*model.DeviceActivation, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, ex, licenseKey)
}

func (r *deviceRepo) ListByLicenseAndOwner(ctx context.Context, tx repository.Tx, licenseKey, ownerID string) ([]*model.DeviceActivation, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var owned bool
	const q = `SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key=$1 AND owner_id=$2);`
	if err := ex.QueryRow(ctx, q, licenseKey, ownerID).Scan(&owned); err != nil {
		return nil, fmt.Errorf("check license owner: %w", err)
	}
	if !owned {
		return nil, domain.ErrLicenseNotFound
	}
	return r.list(ctx, ex, licenseKey)
}

func (r *deviceRepo) list(ctx context.Context, ex executor, licenseKey string) ([]*model.DeviceActivation, error) {
	const q = `
SELECT ` + deviceColumns + `
  FROM device_activations
 WHERE license_key=$1
 ORDER BY first_activated_at ASC, device_id ASC;`
	rows, err := ex.Query(ctx, q, licenseKey)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	out := []*model.DeviceActivation{}
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Upsert keeps the existing row id on conflict and writes it back into d.
func (r *deviceRepo) Upsert(ctx context.Context, tx repository.Tx, d *model.DeviceActivation) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	name, err := r.seal(d.DeviceName)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO device_activations (` + deviceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (license_key, device_id) DO UPDATE SET
  device_name=EXCLUDED.device_name,
  device_type=EXCLUDED.device_type,
  status=EXCLUDED.status,
  first_activated_at=EXCLUDED.first_activated_at,
  last_seen_at=EXCLUDED.last_seen_at,
  updated_at=EXCLUDED.updated_at,
  revoked_at=EXCLUDED.revoked_at
RETURNING id;`
	var id string
	err = ex.QueryRow(ctx, q, d.ID, d.LicenseKey, d.DeviceID, name, d.DeviceType, string(d.Status),
		d.FirstActivatedAt, d.LastSeenAt, d.UpdatedAt, d.RevokedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrLicenseNotFound
		}
		return fmt.Errorf("upsert device: %w", err)
	}
	d.ID = id
	return nil
}

func (r *deviceRepo) Rename(ctx context.Context, tx repository.Tx, licenseKey, deviceID, name string, now time.Time) error {
	sealed, err := r.seal(name)
	if err != nil {
		return err
	}
	const q = `
UPDATE device_activations SET device_name=$3, updated_at=$4
 WHERE license_key=$1 AND device_id=$2 AND status <> 'revoked';`
	return r.execOne(ctx, tx, q, licenseKey, deviceID, sealed, now)
}

func (r *deviceRepo) SetStatus(ctx context.Context, tx repository.Tx, licenseKey, deviceID string, status model.DeviceStatus, now time.Time) error {
	const q = `
UPDATE device_activations
   SET status=$3, updated_at=$4,
       revoked_at=CASE WHEN $3='revoked' THEN $4::timestamptz ELSE NULL END
 WHERE license_key=$1 AND device_id=$2;`
	return r.execOne(ctx, tx, q, licenseKey, deviceID, string(status), now)
}

func (r *deviceRepo) Touch(ctx context.Context, tx repository.Tx, licenseKey, deviceID string, now time.Time) error {
	const q = `
UPDATE device_activations d SET last_seen_at=$3
  FROM licenses l
 WHERE d.license_key=$1 AND d.device_id=$2 AND d.status='active'
   AND l.license_key=d.license_key AND l.status='active';`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, q, licenseKey, deviceID, now)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = ex.QueryRow(ctx, `SELECT status FROM licenses WHERE license_key=$1`, licenseKey).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrLicenseNotFound
	}
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return touchRejection(model.LicenseStatus(status))
}

// touchRejection explains a Touch that matched no row.
func touchRejection(status model.LicenseStatus) error {
	switch status {
	case model.LicenseStatusRevoked:
		return domain.ErrLicenseRevoked
	case model.LicenseStatusExpired:
		return domain.ErrLicenseExpired
	default:
		return domain.ErrDeviceNotFound
	}
}

func (r *deviceRepo) execOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

func (r *deviceRepo) seal(name string) (string, error) {
	if r.cipher == nil {
		return name, nil
	}
	s, err := r.cipher.Seal(name)
	if err != nil {
		return "", fmt.Errorf("seal device name: %w", err)
	}
	return s, nil
}

func (r *deviceRepo) scan(row pgx.Row) (*model.DeviceActivation, error) {
	var (
		d      model.DeviceActivation
		status string
	)
	if err := row.Scan(&d.ID, &d.LicenseKey, &d.DeviceID, &d.DeviceName, &d.DeviceType, &status,
		&d.FirstActivatedAt, &d.LastSeenAt, &d.UpdatedAt, &d.RevokedAt); err != nil {
		return nil, err
	}
	d.Status = model.DeviceStatus(status)
	if r.cipher != nil {
		name, err := r.cipher.Open(d.DeviceName)
		if err != nil {
			return nil, fmt.Errorf("open device name: %w", err)
		}
		d.DeviceName = name
	}
	return &d, nil
}
