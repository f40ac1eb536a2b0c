package storage

import (
	"sync"
	"sync/atomic"

	"github.com/bher20/carparkmanager/internal/carparks"
)

// MemoryStorage keeps the snapshot in process memory. Readers load an atomic
// pointer; writers are serialized by mu and never block readers.
type MemoryStorage struct {
	mu      sync.Mutex
	current atomic.Pointer[carparks.Snapshot]
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Current() (*carparks.Snapshot, bool) {
	snap := m.current.Load()
	return snap, snap != nil
}

func (m *MemoryStorage) Publish(snap *carparks.Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(snap)
	return nil
}
