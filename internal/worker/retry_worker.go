package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/queue"
	"github.com/notifyhub/notification-engine/internal/repository"
)

// RetryWorker polls the database for notifications with a pending retry
// (status=processing, next_retry_at in the past — a transient failure or
// a quiet-hours deferral) and re-enqueues them.
//
// This DB-backed approach means retries survive server restarts:
// scheduled retry times are persisted, not held in memory.
type RetryWorker struct {
	repo     repository.NotificationRepository
	q        *queue.PriorityQueue
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

func NewRetryWorker(
	repo repository.NotificationRepository,
	q *queue.PriorityQueue,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) *RetryWorker {
	if limit <= 0 {
		limit = 100
	}
	return &RetryWorker{repo: repo, q: q, interval: interval, limit: limit, logger: logger}
}

// Run ticks every interval and re-enqueues any due retries. Stops cleanly
// when ctx is cancelled.
func (rw *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("retry worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			rw.poll(ctx)
		}
	}
}

func (rw *RetryWorker) poll(ctx context.Context) {
	now := time.Now().UTC()
	notifications, err := rw.repo.ListPendingRetries(ctx, now, rw.limit)
	if err != nil {
		rw.logger.Error("retry poll error", zap.Error(err))
		return
	}

	for _, n := range notifications {
		if err := rw.q.Enqueue(queue.Item{NotificationID: n.ID, Priority: n.Priority}); err != nil {
			rw.logger.Warn("could not re-enqueue retry",
				zap.String("id", n.ID), zap.Error(err))
			continue
		}

		if _, err := rw.repo.UpdateStatus(ctx, n.ID, domain.StatusProcessing, domain.StatusQueued, now); err != nil {
			rw.logger.Error("failed to update status after re-enqueue",
				zap.String("id", n.ID), zap.Error(err))
		}
	}

	if len(notifications) > 0 {
		rw.logger.Info("re-enqueued due retries", zap.Int("count", len(notifications)))
	}
}
