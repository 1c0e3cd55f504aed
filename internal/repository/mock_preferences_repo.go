package repository

import (
	"context"
	"sync"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// MockPreferencesRepository is a hand-written in-memory PreferencesRepository
// for tests.
type MockPreferencesRepository struct {
	mu    sync.RWMutex
	store map[string]*domain.Preferences
}

func NewMockPreferencesRepository() *MockPreferencesRepository {
	return &MockPreferencesRepository{store: make(map[string]*domain.Preferences)}
}

func (m *MockPreferencesRepository) GetPreferences(_ context.Context, userID string) (*domain.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *MockPreferencesRepository) UpsertPreferences(_ context.Context, p *domain.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.store[p.UserID] = &clone
	return nil
}
