package cache

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

const defaultJanitorInterval = time.Minute

type entry struct {
	val       []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. It is safe for concurrent use. Expired
// entries are dropped lazily on access and swept by a janitor goroutine so
// the map doesn't grow without bound between reads.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// MemoryOption customises a Memory cache.
type MemoryOption func(*Memory)

// WithClock replaces the time source. Tests use this to step through TTL
// windows without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns a running Memory cache. Call Close to stop its janitor.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor()
	return m
}

// Close stops the janitor goroutine. The cache remains usable afterwards,
// it just stops sweeping in the background.
func (m *Memory) Close() error {
	select {
	case <-m.stopCh:
		// already closed
	default:
		close(m.stopCh)
		<-m.doneCh
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	cp := make([]byte, len(val))
	copy(cp, val)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{val: cp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}

	cp := make([]byte, len(e.val))
	copy(cp, e.val)
	return cp, true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if window <= 0 {
		return 0, ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		// Fresh window. Only here does the TTL get set.
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, 1)
		m.entries[key] = entry{val: val, expiresAt: now.Add(window)}
		return 1, nil
	}

	count := int64(binary.BigEndian.Uint64(e.val)) + 1
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(count))
	// Keep the original expiry: the window is fixed, not sliding.
	m.entries[key] = entry{val: val, expiresAt: e.expiresAt}
	return count, nil
}

func (m *Memory) janitor() {
	defer close(m.doneCh)

	ticker := time.NewTicker(defaultJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}
