//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
	red "tw-license-service/internal/infra/redis"
)

// countingLicenseRepo is an in-memory LicenseRepository that counts reads.
type countingLicenseRepo struct {
	mu    sync.Mutex
	byKey map[string]model.License
	reads int
}

func newCountingLicenseRepo(ls ...model.License) *countingLicenseRepo {
	r := &countingLicenseRepo{byKey: map[string]model.License{}}
	for _, l := range ls {
		r.byKey[l.Key] = l
	}
	return r
}

func (r *countingLicenseRepo) Create(_ context.Context, _ repository.Tx, l *model.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[l.Key]; ok {
		return domain.ErrDuplicateKey
	}
	r.byKey[l.Key] = *l
	return nil
}

func (r *countingLicenseRepo) FindByKey(_ context.Context, _ repository.Tx, key string) (*model.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	l, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrLicenseNotFound
	}
	return &l, nil
}

func (r *countingLicenseRepo) FindByKeyForUpdate(ctx context.Context, tx repository.Tx, key string) (*model.License, error) {
	return r.FindByKey(ctx, tx, key)
}

func (r *countingLicenseRepo) FindByOrderID(context.Context, repository.Tx, string) (*model.License, error) {
	return nil, domain.ErrLicenseNotFound
}

func (r *countingLicenseRepo) ListByOwner(context.Context, repository.Tx, string) ([]*model.License, error) {
	return nil, nil
}

func (r *countingLicenseRepo) UpdateStatus(_ context.Context, _ repository.Tx, key string, to model.LicenseStatus, now time.Time, from ...model.LicenseStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byKey[key]
	if !ok {
		return false, domain.ErrLicenseNotFound
	}
	l.Status = to
	l.UpdatedAt = now
	r.byKey[key] = l
	return true, nil
}

func (r *countingLicenseRepo) ExpireDue(_ context.Context, _ repository.Tx, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for k, l := range r.byKey {
		if l.NeedsExpiry(now) {
			l.Status = model.LicenseStatusExpired
			r.byKey[k] = l
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (r *countingLicenseRepo) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// mockRedisClient is a map-backed RedisClient; Err forces every call to fail.
type mockRedisClient struct {
	mu      sync.Mutex
	data    map[string]string
	deleted []string
	Err     error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Ping(context.Context) error { return m.Err }

func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *mockRedisClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.data[key]
	if !ok {
		return "", red.Nil
	}
	return v, nil
}

func (m *mockRedisClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *mockRedisClient) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, m.Err
}

func (m *mockRedisClient) IncrExpireAt(context.Context, string, time.Time) (int64, error) {
	return 0, m.Err
}

func (m *mockRedisClient) DelIfEqual(context.Context, string, string) (bool, error) {
	return false, m.Err
}

func (m *mockRedisClient) Close() error { return nil }
