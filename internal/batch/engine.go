// Package batch collapses bursts of similar notifications into a single
// digest per recipient per window, keyed by (recipient_id, type, group_key).
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/render"
	"github.com/notifyhub/notification-engine/internal/repository"
)

// DeliverySummary is what a dispatch reports back to its caller: how many
// channels were attempted and how many actually delivered.
type DeliverySummary struct {
	ChannelsAttempted int
	ChannelsDelivered int
}

// Dispatcher re-enters the immediate-send path so a flushed digest goes
// out exactly as spec's §4.1 step 6 would dispatch any other notification
// — skipping rate-limit and dedup, which were already applied when each
// member was admitted into the batch.
type Dispatcher interface {
	SendImmediate(ctx context.Context, n *domain.Notification) (DeliverySummary, error)
}

// Engine owns the open-batch table and its flush triggers (size, window
// expiry, or an explicit user-initiated flush).
type Engine struct {
	repo       repository.NotificationRepository
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewEngine(repo repository.NotificationRepository, dispatcher Dispatcher, log *zap.Logger) *Engine {
	return &Engine{repo: repo, dispatcher: dispatcher, log: log}
}

// Admit folds n into the open batch for its (recipient, type, group_key),
// opening a new one if none exists or the existing one is full/expired.
// Flushes immediately if the fold fills the batch to capacity.
func (e *Engine) Admit(ctx context.Context, n *domain.Notification, rule domain.ProcessingRule) error {
	now := time.Now().UTC()
	groupKey := n.GroupKey

	b, err := e.repo.GetOpenBatch(ctx, n.RecipientID, n.Type, groupKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("batch: get open batch: %w", err)
	}

	if b == nil || b.IsFull(rule.MaxBatchSize) || b.IsExpired(now) {
		if b != nil && (b.IsFull(rule.MaxBatchSize) || b.IsExpired(now)) {
			if err := e.flush(ctx, b); err != nil {
				e.log.Warn("batch: flush of full/expired batch before reopening failed", zap.String("batch_id", b.ID), zap.Error(err))
			}
		}
		b = &domain.Batch{
			ID:          uuid.NewString(),
			RecipientID: n.RecipientID,
			Type:        n.Type,
			GroupKey:    groupKey,
			WindowStart: now,
			WindowEnd:   now.Add(time.Duration(rule.BatchWindow) * time.Second),
			Priority:    n.Priority,
			Status:      domain.BatchOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		b.AddMember(n.ID, n.Priority)
		if err := e.repo.CreateBatch(ctx, b); err != nil {
			return fmt.Errorf("batch: create: %w", err)
		}
	} else {
		b.AddMember(n.ID, n.Priority)
		b.UpdatedAt = now
		if err := e.repo.UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("batch: update: %w", err)
		}
	}

	if err := e.repo.MarkBatched(ctx, n.ID, b.ID, now); err != nil {
		return fmt.Errorf("batch: mark member batched: %w", err)
	}

	if b.IsFull(rule.MaxBatchSize) {
		return e.flush(ctx, b)
	}
	return nil
}

// FlushDue flushes every open batch whose window has expired, called by
// the background expiry loop.
func (e *Engine) FlushDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := e.repo.ListExpiredOpenBatches(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("batch: list expired: %w", err)
	}
	flushed := 0
	for _, b := range due {
		if err := e.flush(ctx, b); err != nil {
			e.log.Warn("batch: flush failed", zap.String("batch_id", b.ID), zap.Error(err))
			continue
		}
		flushed++
	}
	return flushed, nil
}

// FlushUser flushes every open batch belonging to userID regardless of
// size or window expiry — the third flush trigger alongside Admit's size
// check and FlushDue's window sweep, for a caller that wants a
// recipient's pending digests delivered right away (e.g. the recipient
// just opened the app).
func (e *Engine) FlushUser(ctx context.Context, userID string) (int, error) {
	open, err := e.repo.ListOpenBatchesByRecipient(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("batch: list open batches for user: %w", err)
	}
	flushed := 0
	for _, b := range open {
		if err := e.flush(ctx, b); err != nil {
			e.log.Warn("batch: user-triggered flush failed", zap.String("batch_id", b.ID), zap.Error(err))
			continue
		}
		flushed++
	}
	return flushed, nil
}

// Run ticks every checkInterval, flushing expired batches until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context, checkInterval time.Duration, batchSize int) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	e.log.Info("batch engine started", zap.Duration("interval", checkInterval))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("batch engine stopping")
			return
		case <-ticker.C:
			if n, err := e.FlushDue(ctx, time.Now().UTC(), batchSize); err != nil {
				e.log.Error("batch expiry sweep failed", zap.Error(err))
			} else if n > 0 {
				e.log.Info("flushed expired batches", zap.Int("count", n))
			}
		}
	}
}

// flush synthesizes a digest notification summarizing the batch's
// members and dispatches it immediately, then marks the batch flushed.
func (e *Engine) flush(ctx context.Context, b *domain.Batch) error {
	if b.Status != domain.BatchOpen {
		return nil
	}

	digest, err := e.synthesize(ctx, b)
	if err != nil {
		return fmt.Errorf("batch: synthesize digest: %w", err)
	}
	if err := e.repo.Create(ctx, digest); err != nil {
		return fmt.Errorf("batch: create digest: %w", err)
	}

	if _, err := e.dispatcher.SendImmediate(ctx, digest); err != nil {
		return fmt.Errorf("batch: dispatch digest: %w", err)
	}

	now := time.Now().UTC()
	b.Status = domain.BatchFlushed
	b.FlushedAt = &now
	b.DigestNotifID = &digest.ID
	b.UpdatedAt = now
	return e.repo.UpdateBatch(ctx, b)
}

// synthesize builds the digest notification's title/body from the
// batch's member count, per spec's "N new {type}s" convention.
func (e *Engine) synthesize(ctx context.Context, b *domain.Batch) (*domain.Notification, error) {
	n := len(b.MemberIDs)
	label := pluralTypeLabel(b.Type, n)

	senderCounts := make(map[string]int)
	for _, id := range b.MemberIDs {
		member, err := e.repo.GetByID(ctx, id)
		if err != nil {
			e.log.Warn("batch: could not load member for digest summary", zap.String("notification_id", id), zap.Error(err))
			continue
		}
		senderCounts[member.SenderID]++
	}
	summary := topSendersSummary(senderCounts, n)

	now := time.Now().UTC()
	vars := map[string]string{"count": fmt.Sprintf("%d", n), "summary": summary}
	body := render.Text("{{summary}}", vars)

	return &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: b.RecipientID,
		SenderID:    "system",
		Type:        b.Type,
		Title:       fmt.Sprintf("%d new %s", n, label),
		Body:        body,
		ChannelMask: domain.NewChannelMask(domain.ChannelInApp, domain.ChannelPush, domain.ChannelEmail),
		Priority:    b.Priority,
		CreatedAt:   now,
		Status:      domain.StatusPending,
		GroupKey:    b.GroupKey,
		TemplateVars: vars,
	}, nil
}

func pluralTypeLabel(t domain.NotificationType, count int) string {
	label := string(t)
	if count == 1 {
		return label
	}
	return label + "s"
}

// topSendersSummary builds a short line over the batch's member senders,
// most-frequent first: up to three names ("alice", "alice and bob",
// "alice, bob and carol"), followed by " and N others" when more senders
// exist, where N is the number of members not sent by a named sender.
func topSendersSummary(counts map[string]int, total int) string {
	type entry struct {
		sender string
		count  int
	}
	entries := make([]entry, 0, len(counts))
	for s, c := range counts {
		entries = append(entries, entry{s, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].sender < entries[j].sender
	})

	const topN = 3
	names := make([]string, 0, topN)
	for i := 0; i < len(entries) && i < topN; i++ {
		names = append(names, entries[i].sender)
	}

	switch {
	case len(names) == 0:
		return fmt.Sprintf("%d new notifications", total)
	case len(names) >= len(entries):
		return joinNames(names)
	default:
		return fmt.Sprintf("%s and %d others", joinNames(names), total-len(names))
	}
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		last := names[len(names)-1]
		return fmt.Sprintf("%s and %s", joinCommaExceptLast(names[:len(names)-1]), last)
	}
}

func joinCommaExceptLast(names []string) string {
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
