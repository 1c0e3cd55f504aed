package repository

import (
	"context"
	"sync"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// MockDeviceRepository is a hand-written in-memory DeviceRepository for tests.
type MockDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*domain.DeviceRegistration // keyed by device id
}

func NewMockDeviceRepository() *MockDeviceRepository {
	return &MockDeviceRepository{devices: make(map[string]*domain.DeviceRegistration)}
}

func (m *MockDeviceRepository) RegisterDevice(_ context.Context, d *domain.DeviceRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.devices[d.ID] = &clone
	return nil
}

func (m *MockDeviceRepository) DeactivateDevice(_ context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok || d.UserID != userID {
		return domain.ErrDeviceNotFound
	}
	d.Active = false
	return nil
}

func (m *MockDeviceRepository) ListUserDevices(_ context.Context, userID string) ([]*domain.DeviceRegistration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.DeviceRegistration
	for _, d := range m.devices {
		if d.UserID == userID && d.Active {
			clone := *d
			result = append(result, &clone)
		}
	}
	return result, nil
}
