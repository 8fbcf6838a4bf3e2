package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres, the store
// itself for the in-memory backend). Repositories accept nil as "no transaction".
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one transaction and commits when fn returns nil.
//
// Activation, rename and revocation for the same license call
// LicenseRepository.FindByKeyForUpdate first thing inside fn, so they
// serialize on the license row.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
