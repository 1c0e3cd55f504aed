package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
)

func TestMockNotificationRepository_UpdateStatus_CAS(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockNotificationRepository()

	n := &domain.Notification{ID: "n1", RecipientID: "u1", Status: domain.StatusQueued}
	if err := repo.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	t.Run("matching expected status applies the write", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, "n1", domain.StatusQueued, domain.StatusProcessing, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected CAS to succeed")
		}
		got, _ := repo.GetByID(ctx, "n1")
		if got.Status != domain.StatusProcessing {
			t.Fatalf("expected processing, got %v", got.Status)
		}
	})

	t.Run("stale expected status is rejected", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, "n1", domain.StatusQueued, domain.StatusSent, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected CAS to fail against a stale expected status")
		}
		got, _ := repo.GetByID(ctx, "n1")
		if got.Status != domain.StatusProcessing {
			t.Fatalf("status should not have regressed, got %v", got.Status)
		}
	})

	t.Run("delivered_at is stamped on transition to delivered", func(t *testing.T) {
		_, _ = repo.UpdateStatus(ctx, "n1", domain.StatusProcessing, domain.StatusSent, time.Now())
		now := time.Now()
		ok, err := repo.UpdateStatus(ctx, "n1", domain.StatusSent, domain.StatusDelivered, now)
		if err != nil || !ok {
			t.Fatalf("expected CAS success, got ok=%v err=%v", ok, err)
		}
		got, _ := repo.GetByID(ctx, "n1")
		if got.DeliveredAt == nil || !got.DeliveredAt.Equal(now) {
			t.Fatalf("expected delivered_at to be stamped")
		}
	})
}

func TestMockNotificationRepository_CreateIdempotency(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockNotificationRepository()

	key := "idem-1"
	n1 := &domain.Notification{ID: "n1", IdempotencyKey: &key}
	n2 := &domain.Notification{ID: "n2", IdempotencyKey: &key}

	if err := repo.Create(ctx, n1); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, n2); err != domain.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMockNotificationRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockNotificationRepository()

	_ = repo.Create(ctx, &domain.Notification{ID: "a", RecipientID: "u1", Type: domain.TypeLike, Status: domain.StatusSent})
	_ = repo.Create(ctx, &domain.Notification{ID: "b", RecipientID: "u1", Type: domain.TypeFollow, Status: domain.StatusPending})
	_ = repo.Create(ctx, &domain.Notification{ID: "c", RecipientID: "u2", Type: domain.TypeLike, Status: domain.StatusSent})

	u1 := "u1"
	results, total, err := repo.List(ctx, domain.ListFilter{RecipientID: &u1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("expected 2 results for u1, got %d", total)
	}
	for _, n := range results {
		if n.RecipientID != "u1" {
			t.Fatalf("leaked notification for recipient %q", n.RecipientID)
		}
	}
}
