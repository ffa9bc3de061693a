// Package mock provides an in-memory Cache for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
)

// MockCache is a map-backed Cache. TTLs are ignored. Function fields, when
// set, override the map behavior.
type MockCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	marks  map[string]bool
	locked map[string]bool

	SetNXFunc       func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	AcquireLockFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func New() *MockCache {
	return &MockCache{
		data:   make(map[string][]byte),
		marks:  make(map[string]bool),
		locked: make(map[string]bool),
	}
}

func (m *MockCache) Ping(ctx context.Context) error { return nil }

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.marks, key)
	delete(m.locked, key)
	return nil
}

func (m *MockCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.AcquireLockFunc != nil {
		return m.AcquireLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[key] {
		return false, nil
	}
	m.locked[key] = true
	return true, nil
}

func (m *MockCache) ReleaseLock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, key)
	return nil
}

func (m *MockCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.SetNXFunc != nil {
		return m.SetNXFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks[key] {
		return false, nil
	}
	m.marks[key] = true
	return true, nil
}

var _ cache.Cache = (*MockCache)(nil)
