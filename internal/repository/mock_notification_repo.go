package repository

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	batches       map[string]*domain.Batch

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr  error
	GetByIDErr error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make(map[string]*domain.Notification),
		batches:       make(map[string]*domain.Batch),
	}
}

func (m *MockNotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.IdempotencyKey != nil {
		for _, existing := range m.notifications {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *n.IdempotencyKey {
				return domain.ErrConflict
			}
		}
	}
	clone := *n
	m.notifications[n.ID] = &clone
	return nil
}

func (m *MockNotificationRepository) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockNotificationRepository) List(_ context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if f.RecipientID != nil && n.RecipientID != *f.RecipientID {
			continue
		}
		if f.Status != nil && n.Status != *f.Status {
			continue
		}
		if f.Type != nil && n.Type != *f.Type {
			continue
		}
		clone := *n
		result = append(result, &clone)
	}
	return result, len(result), nil
}

// UpdateStatus emulates the repository contract's CAS write: it only
// applies when the in-memory row's status still equals expected.
func (m *MockNotificationRepository) UpdateStatus(_ context.Context, id string, expected, next domain.Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.Status != expected {
		return false, nil
	}
	n.Status = next
	switch next {
	case domain.StatusDelivered:
		n.DeliveredAt = &at
	case domain.StatusRead:
		n.ReadAt = &at
	}
	return true, nil
}

func (m *MockNotificationRepository) MarkFailed(_ context.Context, id string, reason string, attempts int, nextRetryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.FailureReason = reason
	n.Attempts = attempts
	n.NextRetryAt = nextRetryAt
	if nextRetryAt == nil {
		n.Status = domain.StatusFailed
	} else {
		n.Status = domain.StatusProcessing
	}
	return nil
}

func (m *MockNotificationRepository) MarkBatched(_ context.Context, id string, batchID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = domain.StatusBatched
	n.BatchID = &batchID
	return nil
}

func (m *MockNotificationRepository) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = domain.StatusCancelled
	return nil
}

func (m *MockNotificationRepository) ListScheduledDue(_ context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.Status == domain.StatusPending && !n.ScheduledAt.After(now) {
			clone := *n
			result = append(result, &clone)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MockNotificationRepository) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.Status == domain.StatusProcessing && n.NextRetryAt != nil && !n.NextRetryAt.After(now) {
			clone := *n
			result = append(result, &clone)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MockNotificationRepository) CreateBatch(_ context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *b
	m.batches[b.ID] = &clone
	return nil
}

func (m *MockNotificationRepository) GetOpenBatch(_ context.Context, recipientID string, t domain.NotificationType, groupKey string) (*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.batches {
		if b.RecipientID == recipientID && b.Type == t && b.GroupKey == groupKey && b.Status == domain.BatchOpen {
			clone := *b
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockNotificationRepository) UpdateBatch(_ context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *b
	m.batches[b.ID] = &clone
	return nil
}

func (m *MockNotificationRepository) ListExpiredOpenBatches(_ context.Context, now time.Time, limit int) ([]*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Batch
	for _, b := range m.batches {
		if b.Status == domain.BatchOpen && !b.WindowEnd.After(now) {
			clone := *b
			result = append(result, &clone)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MockNotificationRepository) ListOpenBatchesByRecipient(_ context.Context, recipientID string) ([]*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Batch
	for _, b := range m.batches {
		if b.RecipientID == recipientID && b.Status == domain.BatchOpen {
			clone := *b
			result = append(result, &clone)
		}
	}
	return result, nil
}
