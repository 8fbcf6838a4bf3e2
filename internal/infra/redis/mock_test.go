//go:build !integration

package redis

import (
	"context"
	"sync"
	"time"
)

// memRedis is an in-memory RedisClient used by the unit tests.
type memRedis struct {
	mu       sync.Mutex
	vals     map[string]string
	counters map[string]int64
	expireAt map[string]time.Time
	failWith error
}

func newMemRedis() *memRedis {
	return &memRedis{vals: map[string]string{}, counters: map[string]int64{}, expireAt: map[string]time.Time{}}
}

func (m *memRedis) Ping(context.Context) error { return m.failWith }

func (m *memRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	switch v := value.(type) {
	case []byte:
		m.vals[key] = string(v)
	case string:
		m.vals[key] = v
	}
	return nil
}

func (m *memRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	v, ok := m.vals[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *memRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	return m.failWith
}

func (m *memRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = value.(string)
	return true, nil
}

func (m *memRedis) IncrExpireAt(_ context.Context, key string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	m.counters[key]++
	m.expireAt[key] = at
	return m.counters[key], nil
}

func (m *memRedis) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals[key] != value {
		return false, nil
	}
	delete(m.vals, key)
	return true, nil
}

func (m *memRedis) Close() error { return nil }
