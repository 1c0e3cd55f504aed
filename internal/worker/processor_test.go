package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/batch"
	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/dedup"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/queue"
	"github.com/notifyhub/notification-engine/internal/ratelimit"
	"github.com/notifyhub/notification-engine/internal/repository"
)

// fakeAdapter is a hand-written channel.Adapter whose behavior is fixed
// per test via err/delivered, no network involved.
type fakeAdapter struct {
	ch        domain.Channel
	err       error
	delivered int
	calls     int
}

func (f *fakeAdapter) Channel() domain.Channel { return f.ch }
func (f *fakeAdapter) SendOne(context.Context, *domain.Notification, string) error { return f.err }
func (f *fakeAdapter) SendToUser(_ context.Context, _ *domain.Notification, _ string) (*channel.SendResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &channel.SendResult{Delivered: f.delivered, Attempted: 1}, nil
}
func (f *fakeAdapter) Stats() channel.Stats   { return channel.Stats{} }
func (f *fakeAdapter) Health(context.Context) error { return nil }

func newTestProcessor(t *testing.T, adapters map[domain.Channel]channel.Adapter) (*Processor, *repository.MockNotificationRepository, *repository.MockPreferencesRepository) {
	t.Helper()
	repo := repository.NewMockNotificationRepository()
	prefs := repository.NewMockPreferencesRepository()
	q := queue.New()
	rules := domain.NewRuleTable(nil)

	proc := NewProcessor(Deps{
		Queue:        q,
		Repo:         repo,
		Prefs:        prefs,
		Rules:        rules,
		Dedup:        dedup.New(4),
		Limiter:      ratelimit.New(4),
		Adapters:     adapters,
		RateDefaults: config.RateLimitConfig{DefaultPerHour: 1000, DefaultPerDay: 10000},
		DedupDefault: 5 * time.Minute,
		MaxAttempts:  3,
		Backoff:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Log:          zap.NewNop(),
	})
	proc.SetBatchEngine(batch.NewEngine(repo, proc, zap.NewNop()))
	return proc, repo, prefs
}

func newTestNotification(now time.Time) *domain.Notification {
	return &domain.Notification{
		ID:          "n1",
		RecipientID: "user-1",
		SenderID:    "user-2",
		Type:        domain.TypeComment,
		Title:       "new comment",
		Body:        "someone commented",
		ChannelMask: domain.NewChannelMask(domain.ChannelInApp),
		Priority:    domain.PriorityNormal,
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
		Status:      domain.StatusProcessing,
	}
}

func TestProcessor_DispatchDeliversOnSuccess(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rule, _ := proc.rules.Get(n.Type)
	if _, err := proc.dispatch(ctx, n, rule); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got, err := repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected adapter called once, got %d", adapter.calls)
	}
}

func TestProcessor_DispatchSchedulesRetryOnTransientFailure(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, err: context.DeadlineExceeded}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	_ = repo.Create(ctx, n)

	rule, _ := proc.rules.Get(n.Type)
	if _, err := proc.dispatch(ctx, n, rule); err == nil {
		t.Fatalf("expected dispatch to report the transient failure")
	}

	got, _ := repo.GetByID(ctx, n.ID)
	if got.Status != domain.StatusProcessing {
		t.Fatalf("expected status left at processing pending retry, got %s", got.Status)
	}
	if got.NextRetryAt == nil {
		t.Fatalf("expected next_retry_at to be set")
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts incremented to 1, got %d", got.Attempts)
	}
}

func TestProcessor_DispatchFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, err: context.DeadlineExceeded}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	n.Attempts = 2 // one short of MaxAttempts=3
	_ = repo.Create(ctx, n)

	rule, _ := proc.rules.Get(n.Type)
	if _, err := proc.dispatch(ctx, n, rule); err == nil {
		t.Fatalf("expected dispatch to report failure")
	}

	got, _ := repo.GetByID(ctx, n.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected permanently failed, got %s", got.Status)
	}
}

func TestProcessor_ProcessItemMarksExpiredAsFailed(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	n.ExpiresAt = now.Add(-time.Minute)
	n.Status = domain.StatusQueued
	_ = repo.Create(ctx, n)

	proc.processItem(ctx, queue.Item{NotificationID: n.ID, Priority: n.Priority})

	got, _ := repo.GetByID(ctx, n.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected expired item marked failed, got %s", got.Status)
	}
	if got.FailureReason != "expired" {
		t.Fatalf("expected failure reason 'expired', got %q", got.FailureReason)
	}
}

func TestProcessor_ProcessItemBatchesWhenRuleAllows(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	n.Type = domain.TypeLike
	n.AllowBundling = true
	n.Status = domain.StatusQueued
	_ = repo.Create(ctx, n)

	proc.processItem(ctx, queue.Item{NotificationID: n.ID, Priority: n.Priority})

	got, _ := repo.GetByID(ctx, n.ID)
	if got.Status != domain.StatusBatched {
		t.Fatalf("expected batchable type folded into a batch, got %s", got.Status)
	}
}

func TestProcessor_SendImmediateDeliversFromPendingStatus(t *testing.T) {
	// Digests and admin sends reach SendImmediate with Status still
	// pending (they never pass through processItem's "mark processing"
	// step), so the CAS preconditions here must accept that starting
	// status rather than assuming processing.
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	ctx := context.Background()
	now := time.Now().UTC()
	n := newTestNotification(now)
	n.Status = domain.StatusPending
	if err := repo.Create(ctx, n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := proc.SendImmediate(ctx, n); err != nil {
		t.Fatalf("send immediate: %v", err)
	}

	got, err := repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
}

func TestProcessor_EnqueueRejectsInvalid(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, _, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	n := &domain.Notification{RecipientID: ""}
	decision, err := proc.Enqueue(context.Background(), n)
	if decision != DecisionRejectedInvalid || err == nil {
		t.Fatalf("expected rejected_invalid decision, got %s / %v", decision, err)
	}
}

func TestProcessor_EnqueueAcceptsAndQueues(t *testing.T) {
	adapter := &fakeAdapter{ch: domain.ChannelInApp, delivered: 1}
	proc, repo, _ := newTestProcessor(t, map[domain.Channel]channel.Adapter{domain.ChannelInApp: adapter})

	now := time.Now().UTC()
	n := newTestNotification(now)
	n.ScheduledAt = now
	n.Status = ""

	decision, err := proc.Enqueue(context.Background(), n)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if decision != DecisionAccepted {
		t.Fatalf("expected accepted, got %s", decision)
	}

	got, err := repo.GetByID(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}
}
