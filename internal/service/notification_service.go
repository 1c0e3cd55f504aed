// Package service implements the engine's public API surface: the
// business rules around admission, cancellation, preferences, and device
// registration that HTTP handlers and any other caller depend on. Workers
// depend on the processor directly, not on this package.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/batch"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
	"github.com/notifyhub/notification-engine/internal/worker"
)

// Enqueuer is the subset of worker.Processor the service depends on,
// narrowed to an interface so tests can substitute a fake without
// constructing a full processor.
type Enqueuer interface {
	Enqueue(ctx context.Context, n *domain.Notification) (worker.Decision, error)
	SendImmediate(ctx context.Context, n *domain.Notification) (batch.DeliverySummary, error)
	FlushUserBatches(ctx context.Context, userID string) (int, error)
}

// NotificationService coordinates the repository and the processor's
// admission path. All business rules (validation, cancel state machine,
// batch size limits) live here; HTTP handlers depend on this service, not
// on the repository or processor directly.
type NotificationService struct {
	repo   repository.NotificationRepository
	prefs  repository.PreferencesRepository
	devs   repository.DeviceRepository
	proc   Enqueuer
	logger *zap.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	prefs repository.PreferencesRepository,
	devs repository.DeviceRepository,
	proc Enqueuer,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{repo: repo, prefs: prefs, devs: devs, proc: proc, logger: logger}
}

// Create builds, validates, and admits a single notification.
func (s *NotificationService) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	n := s.buildNotification(req)
	if _, err := s.proc.Enqueue(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateBatch admits up to 1000 notifications from one request (the
// admission-time batch — distinct from the digest batch the batching
// engine synthesizes later at flush time). Each is validated and
// enqueued independently; a failure partway through does not roll back
// the ones already admitted.
func (s *NotificationService) CreateBatch(ctx context.Context, requests []domain.CreateNotificationRequest) ([]*domain.Notification, error) {
	if len(requests) == 0 {
		return nil, domain.ErrBatchEmpty
	}
	if len(requests) > 1000 {
		return nil, domain.ErrBatchTooLarge
	}

	out := make([]*domain.Notification, 0, len(requests))
	for i, req := range requests {
		n := s.buildNotification(req)
		if _, err := s.proc.Enqueue(ctx, n); err != nil {
			return out, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// SendImmediate bypasses the queue entirely — used for system alerts and
// admin-triggered sends that must not wait behind ordinary traffic.
func (s *NotificationService) SendImmediate(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	n := s.buildNotification(req)
	if err := n.Validate(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	if _, err := s.proc.SendImmediate(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Cancel marks a notification as cancelled if it is still in a
// cancellable (non-terminal, non-processing) state.
func (s *NotificationService) Cancel(ctx context.Context, id string) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch n.Status {
	case domain.StatusCancelled:
		return domain.ErrAlreadyCancelled
	case domain.StatusProcessing, domain.StatusSent, domain.StatusDelivered, domain.StatusRead, domain.StatusBatched, domain.StatusFailed:
		return domain.ErrNotCancellable
	}

	return s.repo.Cancel(ctx, id)
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error) {
	return s.repo.List(ctx, filter)
}

// GetPreferences returns a recipient's saved preferences, or the all-on
// default if none have been saved yet.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	p, err := s.prefs.GetPreferences(ctx, userID)
	if err == nil {
		return p, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	defaults := domain.DefaultPreferences(userID)
	return &defaults, nil
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, p *domain.Preferences) error {
	p.UpdatedAt = time.Now().UTC()
	return s.prefs.UpsertPreferences(ctx, p)
}

// RegisterDevice adds a push token registration under a freshly generated
// device id; registering a token already on file adds another registration
// rather than refreshing the existing one.
func (s *NotificationService) RegisterDevice(ctx context.Context, req domain.RegisterDeviceRequest) (*domain.DeviceRegistration, error) {
	if !req.Platform.IsValid() {
		return nil, domain.ErrInvalidPlatform
	}
	now := time.Now().UTC()
	d := &domain.DeviceRegistration{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Platform:       req.Platform,
		Token:          req.Token,
		Active:         true,
		RegisteredAt:   now,
		LastSeenAt:     now,
		TokenUpdatedAt: now,
	}
	if err := s.devs.RegisterDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// FlushUserBatches delivers a recipient's pending digests right away,
// regardless of how full they are or how much window remains — the
// explicit out-of-band flush trigger alongside size and window expiry.
func (s *NotificationService) FlushUserBatches(ctx context.Context, userID string) (int, error) {
	return s.proc.FlushUserBatches(ctx, userID)
}

func (s *NotificationService) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	return s.devs.DeactivateDevice(ctx, userID, deviceID)
}

func (s *NotificationService) ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error) {
	return s.devs.ListUserDevices(ctx, userID)
}

func (s *NotificationService) buildNotification(req domain.CreateNotificationRequest) *domain.Notification {
	now := time.Now().UTC()
	mask := domain.NewChannelMask(req.ChannelMask...)

	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	expiresAt := now.Add(72 * time.Hour)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	n := &domain.Notification{
		ID:                uuid.New().String(),
		RecipientID:       req.RecipientID,
		SenderID:          req.SenderID,
		Type:              req.Type,
		Title:             req.Title,
		Body:              req.Body,
		ActionLink:        req.ActionLink,
		ContentRefs:       req.ContentRefs,
		ChannelMask:       mask,
		Priority:          priority,
		CreatedAt:         now,
		ScheduledAt:       scheduledAt,
		ExpiresAt:         expiresAt,
		Status:            domain.StatusPending,
		GroupKey:          req.GroupKey,
		TemplateVars:      req.TemplateVars,
		AllowBundling:     req.AllowBundling,
		RespectQuietHours: req.RespectQuietHours,
	}
	if n.SenderID == "" {
		n.SenderID = "system"
	}
	return n
}
