package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/batch"
	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/queue"
)

func TestPool_ProcessesEnqueuedItem(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})
	proc.batchEngine = batch.NewEngine(repo, proc, zap.NewNop())

	q := proc.q
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(2, q, proc, zap.NewNop())
	pool.Start(ctx)

	now := time.Now().UTC()
	n := newTestNotification(now)
	n.Status = domain.StatusQueued
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := q.Enqueue(queue.Item{NotificationID: n.ID, Priority: n.Priority}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := repo.GetByID(context.Background(), n.ID)
		if err == nil && got.Status == domain.StatusDelivered {
			cancel()
			pool.Wait()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	pool.Wait()
	t.Fatalf("notification was never delivered by the pool")
}
