package sessionstore

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps the blob for the life of the process. It backs the
// "none" driver and tests.
type MemoryBackend struct {
	mutex     sync.Mutex
	data      []byte
	expiresAt time.Time
}

func NewMemory() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Get(ctx context.Context) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Check for context cancellation/deadline early.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if m.data == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryBackend) Put(ctx context.Context, data []byte, expiresAt time.Time) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data = make([]byte, len(data))
	copy(m.data, data)
	m.expiresAt = expiresAt
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data = nil
	m.expiresAt = time.Time{}
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
