package repository

import (
	"context"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// NotificationRepository defines all persistence operations for
// notifications and the digests they may be folded into. The pgx
// implementation is in pg_notification_repo.go; tests use a hand-written
// mock (mock_notification_repo.go). No mock-generation library needed.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error)

	// UpdateStatus is a compare-and-set write: it only applies when the
	// row's current status equals expected, and reports whether it did.
	// This is the CAS the repository contract names and the mechanism
	// that makes status regression impossible under concurrent workers.
	UpdateStatus(ctx context.Context, id string, expected, next domain.Status, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, reason string, attempts int, nextRetryAt *time.Time) error
	Cancel(ctx context.Context, id string) error

	// MarkBatched records that a member notification was folded into a
	// digest: status moves to batched and batch_id is stamped in one
	// write, since the two must never be observed separately.
	MarkBatched(ctx context.Context, id string, batchID string, at time.Time) error

	ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)

	CreateBatch(ctx context.Context, b *domain.Batch) error
	GetOpenBatch(ctx context.Context, recipientID string, t domain.NotificationType, groupKey string) (*domain.Batch, error)
	UpdateBatch(ctx context.Context, b *domain.Batch) error
	ListExpiredOpenBatches(ctx context.Context, now time.Time, limit int) ([]*domain.Batch, error)

	// ListOpenBatchesByRecipient returns every still-open batch across all
	// types and group keys for recipientID, for the explicit FlushUser
	// trigger (spec's third flush trigger alongside size and window).
	ListOpenBatchesByRecipient(ctx context.Context, recipientID string) ([]*domain.Batch, error)
}
