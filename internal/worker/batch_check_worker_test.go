package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/batch"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
)

type fakeBatchDispatcher struct {
	dispatched int
}

func (f *fakeBatchDispatcher) SendImmediate(context.Context, *domain.Notification) (batch.DeliverySummary, error) {
	f.dispatched++
	return batch.DeliverySummary{ChannelsAttempted: 1, ChannelsDelivered: 1}, nil
}

func TestBatchCheckWorker_FlushesExpiredBatchOnTick(t *testing.T) {
	repo := repository.NewMockNotificationRepository()
	dispatcher := &fakeBatchDispatcher{}
	engine := batch.NewEngine(repo, dispatcher, zap.NewNop())
	bw := NewBatchCheckWorker(engine, 20*time.Millisecond, 10, zap.NewNop())

	now := time.Now().UTC()
	n := &domain.Notification{
		ID: "m1", RecipientID: "user-1", SenderID: "user-2",
		Type: domain.TypeLike, Title: "t", Body: "b",
		ChannelMask: domain.NewChannelMask(domain.ChannelInApp),
		Priority:    domain.PriorityNormal,
		CreatedAt:   now, Status: domain.StatusPending,
	}
	_ = repo.Create(context.Background(), n)

	rule := domain.ProcessingRule{Type: domain.TypeLike, Batchable: true, BatchWindow: 0, MaxBatchSize: 100}
	if err := engine.Admit(context.Background(), n, rule); err != nil {
		t.Fatalf("admit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	bw.Run(ctx)

	if dispatcher.dispatched == 0 {
		t.Fatalf("expected the batch check worker's tick to flush the expired batch")
	}
}
