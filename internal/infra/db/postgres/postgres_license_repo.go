package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
)

var _ repository.LicenseRepository = (*licenseRepo)(nil)

const (
	licenseKeyConstraint   = "licenses_license_key_uniq"
	licenseOrderConstraint = "licenses_order_id_uniq"
)

const licenseColumns = `id, license_key, owner_id, product_id, order_id, status, activation_limit, expires_at, created_at, updated_at`

type licenseRepo struct{ pool *pgxpool.Pool }

func NewLicenseRepo(pool *pgxpool.Pool) *licenseRepo {
	return &licenseRepo{pool: pool}
}

func (r *licenseRepo) Create(ctx context.Context, tx repository.Tx, l *model.License) error {
	if l == nil {
		return domain.ErrInvalidArgument
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO licenses (` + licenseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err = ex.Exec(ctx, q, l.ID, l.Key, l.OwnerID, l.ProductID, l.OrderID, string(l.Status), l.ActivationLimit, l.ExpiresAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		switch uniqueViolation(err) {
		case licenseKeyConstraint:
			return domain.ErrDuplicateKey
		case licenseOrderConstraint:
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (r *licenseRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) (*model.License, error) {
	return r.queryOne(ctx, tx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key=$1;`, key)
}

// FindByKeyForUpdate holds the row lock until the surrounding tx ends.
func (r *licenseRepo) FindByKeyForUpdate(ctx context.Context, tx repository.Tx, key string) (*model.License, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return r.queryOne(ctx, tx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key=$1 FOR UPDATE;`, key)
}

func (r *licenseRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.License, error) {
	return r.queryOne(ctx, tx, `SELECT `+licenseColumns+` FROM licenses WHERE order_id=$1;`, orderID)
}

func (r *licenseRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string) ([]*model.License, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT ` + licenseColumns + ` FROM licenses WHERE owner_id=$1 ORDER BY created_at ASC, license_key ASC;`
	rows, err := ex.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var out []*model.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *licenseRepo) UpdateStatus(ctx context.Context, tx repository.Tx, key string, to model.LicenseStatus, now time.Time, from ...model.LicenseStatus) (bool, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	const q = `
UPDATE licenses SET status=$2, updated_at=$3
 WHERE license_key=$1 AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]));`
	ct, err := ex.Exec(ctx, q, key, string(to), now, allowed)
	if err != nil {
		return false, fmt.Errorf("update license status: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish a failed compare from a missing row.
	var exists bool
	if err := ex.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key=$1);`, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("check license: %w", err)
	}
	if !exists {
		return false, domain.ErrLicenseNotFound
	}
	return false, nil
}

func (r *licenseRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE licenses SET status='expired', updated_at=$1
 WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= $1
RETURNING license_key;`
	rows, err := ex.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("expire licenses: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *licenseRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.License, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	l, err := scanLicense(ex.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLicenseNotFound
	}
	return l, err
}

func scanLicense(row pgx.Row) (*model.License, error) {
	var (
		l      model.License
		status string
	)
	if err := row.Scan(&l.ID, &l.Key, &l.OwnerID, &l.ProductID, &l.OrderID, &status, &l.ActivationLimit, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Status = model.LicenseStatus(status)
	return &l, nil
}
