package ledger

import (
	"context"
	"sync"
	"time"
)

// InMemory is a mutex-guarded Ledger for tests and single-process
// deployments without an external store.
type InMemory struct {
	mu      sync.Mutex
	blocked map[string]BlockEntry
	devices map[string]Device
}

var _ Ledger = (*InMemory)(nil)

// NewInMemory returns an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		blocked: make(map[string]BlockEntry),
		devices: make(map[string]Device),
	}
}

func (m *InMemory) BlockToken(_ context.Context, entry BlockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[entry.TokenID]; ok {
		return nil
	}
	if entry.BlockedAt.IsZero() {
		entry.BlockedAt = time.Now().UTC()
	}
	m.blocked[entry.TokenID] = entry
	return nil
}

func (m *InMemory) IsTokenBlocked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[tokenID]
	return ok, nil
}

func (m *InMemory) CreateDevice(_ context.Context, device Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.devices[device.DeviceID]; ok {
		if existing.NIK != device.NIK {
			return ErrConflict
		}
		return nil
	}
	if device.IssuedAt.IsZero() {
		device.IssuedAt = time.Now().UTC()
	}
	m.devices[device.DeviceID] = device
	return nil
}

func (m *InMemory) GetDevice(_ context.Context, deviceID string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *InMemory) RevokeDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[deviceID]; ok {
		d.Revoked = true
		m.devices[deviceID] = d
	}
	return nil
}

func (m *InMemory) IsDeviceRevoked(_ context.Context, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	return ok && d.Revoked, nil
}
