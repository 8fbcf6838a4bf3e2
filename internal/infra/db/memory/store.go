// Package memory is a process-local implementation of the license store ports.
// Transactions are serialized and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
)

var (
	_ repository.LicenseRepository  = (*Store)(nil)
	_ repository.DeviceRepository   = (*Store)(nil)
	_ repository.TransactionManager = (*Store)(nil)
)

type memTx struct{ s *Store }

type snapshot struct {
	licenses map[string]model.License
	orders   map[string]string
	devices  map[string]map[string]model.DeviceActivation
}

type Store struct {
	txMu sync.Mutex   // one writer at a time: open transactions and non-tx writes
	mu   sync.RWMutex // guards the maps below

	licenses map[string]model.License                     // by key
	orders   map[string]string                            // order id -> key
	devices  map[string]map[string]model.DeviceActivation // key -> device id -> record

	fail error
}

func NewStore() *Store {
	return &Store{
		licenses: make(map[string]model.License),
		orders:   make(map[string]string),
		devices:  make(map[string]map[string]model.DeviceActivation),
	}
}

// FailWith makes every subsequent call return err until cleared with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *Store) failure() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail
}

// WithTx ignores the isolation options; transactions are fully serialized.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.failure(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// writeScope takes the writer lock for calls made outside a transaction.
func (s *Store) writeScope(tx repository.Tx) (func(), error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	switch v := tx.(type) {
	case nil:
		s.txMu.Lock()
		return s.txMu.Unlock, nil
	case *memTx:
		if v.s != s {
			return nil, domain.ErrInvalidExecContext
		}
		return func() {}, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func (s *Store) readScope(tx repository.Tx) error {
	if err := s.failure(); err != nil {
		return err
	}
	switch v := tx.(type) {
	case nil:
		return nil
	case *memTx:
		if v.s != s {
			return domain.ErrInvalidExecContext
		}
		return nil
	default:
		return domain.ErrInvalidExecContext
	}
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		licenses: make(map[string]model.License, len(s.licenses)),
		orders:   make(map[string]string, len(s.orders)),
		devices:  make(map[string]map[string]model.DeviceActivation, len(s.devices)),
	}
	for k, v := range s.licenses {
		snap.licenses[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, m := range s.devices {
		cp := make(map[string]model.DeviceActivation, len(m))
		for id, d := range m {
			cp[id] = d
		}
		snap.devices[k] = cp
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	s.licenses, s.orders, s.devices = snap.licenses, snap.orders, snap.devices
	s.mu.Unlock()
}

// ---- licenses ----

func (s *Store) Create(_ context.Context, tx repository.Tx, l *model.License) error {
	if l == nil {
		return domain.ErrInvalidArgument
	}
	done, err := s.writeScope(tx)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[l.Key]; ok {
		return domain.ErrDuplicateKey
	}
	if l.OrderID != nil {
		if _, ok := s.orders[*l.OrderID]; ok {
			return domain.ErrAlreadyExists
		}
		s.orders[*l.OrderID] = l.Key
	}
	s.licenses[l.Key] = *l
	return nil
}

func (s *Store) FindByKey(_ context.Context, tx repository.Tx, key string) (*model.License, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.licenses[key]
	if !ok {
		return nil, domain.ErrLicenseNotFound
	}
	return &l, nil
}

// FindByKeyForUpdate needs a transaction; the transaction itself is the lock.
func (s *Store) FindByKeyForUpdate(ctx context.Context, tx repository.Tx, key string) (*model.License, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return s.FindByKey(ctx, tx, key)
}

func (s *Store) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.License, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	key, ok := s.orders[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrLicenseNotFound
	}
	return s.FindByKey(ctx, tx, key)
}

func (s *Store) ListByOwner(_ context.Context, tx repository.Tx, ownerID string) ([]*model.License, error) {
	if err := s.readScope(tx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.License
	for _, l := range s.licenses {
		if l.OwnerID == ownerID {
			l := l
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, tx repository.Tx, key string, to model.LicenseStatus, now time.Time, from ...model.LicenseStatus) (bool, error) {
	done, err := s.writeScope(tx)
	if err != nil {
		return false, err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[key]
	if !ok {
		return false, domain.ErrLicenseNotFound
	}
	if len(from) > 0 && !hasStatus(from, l.Status) {
		return false, nil
	}
	l.Status = to
	l.UpdatedAt = now
	s.licenses[key] = l
	return true, nil
}

func (s *Store) ExpireDue(_ context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	done, err := s.writeScope(tx)
	if err != nil {
		return nil, err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, l := range s.licenses {
		if l.NeedsExpiry(now) {
			l.Status = model.LicenseStatusExpired
			l.UpdatedAt = now
			s.licenses[k] = l
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func hasStatus(set []model.LicenseStatus, st model.LicenseStatus) bool {
	for _, v := range set {
		if v == st {
			return true
		}
	}
	return false
}
