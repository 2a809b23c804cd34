// internal/kv/memory.go
//
// In-memory implementation of the Store interface.
// Used for local development (REDIS_URL=memory://) and component tests.
//
// Characteristics:
//   - Entries keyed by string, holding either a string or a hash.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Expiry is evaluated lazily against an injectable clock.
//   - State is lost when the process restarts.

package kv

import (
	"context"
	"sync"
	"time"
)

// entry is a single stored value; exactly one of str/hash is meaningful.
type entry struct {
	str       string
	hash      map[string]string
	isHash    bool
	expiresAt time.Time // zero means no expiry
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex     // guards entries
	entries map[string]*entry
	now     func() time.Time
}

// MemoryOption configures NewMemory.
type MemoryOption func(*memory)

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memory) { m.now = now }
}

// NewMemory constructs a new in-memory Store.
func NewMemory(opts ...MemoryOption) Store {
	m := &memory{entries: make(map[string]*entry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// live returns the entry for key, dropping it when expired. Callers hold mu.
func (m *memory) live(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *memory) Set(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{str: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return "", false, nil
	}
	if e.isHash {
		return "", false, ErrWrongType
	}
	return e.str, true, nil
}

func (m *memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memory) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	e := m.live(key)
	if e == nil {
		return out, nil
	}
	if !e.isHash {
		return nil, ErrWrongType
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (m *memory) HashSet(ctx context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		e = &entry{hash: map[string]string{}, isHash: true}
		m.entries[key] = e
	}
	if !e.isHash {
		return ErrWrongType
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (m *memory) HashDelete(ctx context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return nil
	}
	if !e.isHash {
		return ErrWrongType
	}
	for _, f := range fields {
		delete(e.hash, f)
	}
	// Redis drops a hash once its last field is gone.
	if len(e.hash) == 0 {
		delete(m.entries, key)
	}
	return nil
}

func (m *memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expiresAt = m.deadline(ttl)
	return nil
}

func (m *memory) TTL(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return TTLMissing, nil
	}
	if e.expiresAt.IsZero() {
		return TTLPersistent, nil
	}
	// Round to the nearest second like Redis does.
	left := e.expiresAt.Sub(m.now())
	return int64((left + time.Second/2) / time.Second), nil
}

func (m *memory) PTTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return time.Duration(TTLMissing), nil
	}
	if e.expiresAt.IsZero() {
		return time.Duration(TTLPersistent), nil
	}
	return e.expiresAt.Sub(m.now()).Truncate(time.Millisecond), nil
}

func (m *memory) Ping(ctx context.Context) bool { return true }

func (m *memory) Close() error { return nil }
