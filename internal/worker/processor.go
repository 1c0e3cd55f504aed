// Package worker implements the processor core: the bounded queue's
// consumers, the rule-driven admission pipeline (expiry, rate-limit,
// dedup, batch-or-dispatch), and the side loops that feed the queue
// (scheduled release, retry, batch expiry).
package worker

import (
	"context"
	"fmt"
	"sync"
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

// Decision is the outcome of Enqueue, per the processor's contract.
type Decision string

const (
	DecisionAccepted        Decision = "accepted"
	DecisionQueueFull       Decision = "queue_full"
	DecisionRejectedInvalid Decision = "rejected_invalid"
)

// MetricHooks carries the metric callbacks injected by the caller, kept
// as a struct (per the teacher's pool.go) so the processor's own
// constructor signature stays uncluttered. Every field defaults to a
// no-op if left nil.
type MetricHooks struct {
	OnSent         func(ch domain.Channel, latency time.Duration)
	OnFailed       func(ch domain.Channel)
	OnRateLimited  func(t domain.NotificationType)
	OnDeduplicated func(t domain.NotificationType)
	OnBatched      func(t domain.NotificationType)
}

func (h *MetricHooks) fillDefaults() {
	if h.OnSent == nil {
		h.OnSent = func(domain.Channel, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Channel) {}
	}
	if h.OnRateLimited == nil {
		h.OnRateLimited = func(domain.NotificationType) {}
	}
	if h.OnDeduplicated == nil {
		h.OnDeduplicated = func(domain.NotificationType) {}
	}
	if h.OnBatched == nil {
		h.OnBatched = func(domain.NotificationType) {}
	}
}

// Processor is the pipeline core: Enqueue/SendImmediate are its public
// contract; processItem is the per-dequeued-item worker step every Worker
// goroutine calls.
type Processor struct {
	q     *queue.PriorityQueue
	repo  repository.NotificationRepository
	prefs repository.PreferencesRepository
	rules *domain.RuleTable

	dedupSet *dedup.Set
	limiter  *ratelimit.Limiter
	adapters map[domain.Channel]channel.Adapter

	batchEngine *batch.Engine
	classifier  channel.FailureClassifier

	rateDefaults config.RateLimitConfig
	dedupDefault time.Duration
	maxAttempts  int
	backoff      []time.Duration

	hooks MetricHooks
	log   *zap.Logger
}

type Deps struct {
	Queue        *queue.PriorityQueue
	Repo         repository.NotificationRepository
	Prefs        repository.PreferencesRepository
	Rules        *domain.RuleTable
	Dedup        *dedup.Set
	Limiter      *ratelimit.Limiter
	Adapters     map[domain.Channel]channel.Adapter
	Classifier   channel.FailureClassifier
	RateDefaults config.RateLimitConfig
	DedupDefault time.Duration
	MaxAttempts  int
	Backoff      []time.Duration
	Hooks        MetricHooks
	Log          *zap.Logger
}

func NewProcessor(d Deps) *Processor {
	if d.Classifier == nil {
		d.Classifier = channel.DefaultClassifier
	}
	d.Hooks.fillDefaults()
	return &Processor{
		q:            d.Queue,
		repo:         d.Repo,
		prefs:        d.Prefs,
		rules:        d.Rules,
		dedupSet:     d.Dedup,
		limiter:      d.Limiter,
		adapters:     d.Adapters,
		classifier:   d.Classifier,
		rateDefaults: d.RateDefaults,
		dedupDefault: d.DedupDefault,
		maxAttempts:  d.MaxAttempts,
		backoff:      d.Backoff,
		hooks:        d.Hooks,
		log:          d.Log,
	}
}

// SetBatchEngine wires the batching engine after construction: the engine
// itself is built with the processor as its Dispatcher, so the two can't
// be constructed in a single step without one seeing a nil reference.
func (p *Processor) SetBatchEngine(e *batch.Engine) { p.batchEngine = e }

// FlushUserBatches flushes every open digest batch belonging to userID
// right away, bypassing their size and window triggers.
func (p *Processor) FlushUserBatches(ctx context.Context, userID string) (int, error) {
	return p.batchEngine.FlushUser(ctx, userID)
}

// Enqueue validates n, persists it, and places it on the bounded queue
// (or defers it to the scheduled-release loop if scheduled_at is in the
// future). Non-blocking: a full queue is reported, not waited out.
func (p *Processor) Enqueue(ctx context.Context, n *domain.Notification) (Decision, error) {
	now := time.Now().UTC()
	if err := n.Validate(now); err != nil {
		return DecisionRejectedInvalid, err
	}

	if rule, ok := p.rules.Get(n.Type); ok && n.Priority == "" {
		n.Priority = rule.DefaultPriority
	}
	if n.Status == "" {
		n.Status = domain.StatusPending
	}

	if err := p.repo.Create(ctx, n); err != nil {
		return "", fmt.Errorf("processor: create: %w", err)
	}

	if !n.ScheduledAt.IsZero() && n.ScheduledAt.After(now) {
		// Left at status=pending; the scheduler worker releases it later.
		return DecisionAccepted, nil
	}

	if err := p.q.Enqueue(queue.Item{NotificationID: n.ID, Priority: n.Priority}); err != nil {
		return DecisionQueueFull, err
	}
	if _, err := p.repo.UpdateStatus(ctx, n.ID, domain.StatusPending, domain.StatusQueued, now); err != nil {
		p.log.Warn("processor: failed to mark queued", zap.String("id", n.ID), zap.Error(err))
	}
	return DecisionAccepted, nil
}

// SendImmediate bypasses rate-limit, dedup, and batching but still
// renders and dispatches through adapters — used for digests re-entering
// the pipeline and for admin/system-alert sends that must not wait.
func (p *Processor) SendImmediate(ctx context.Context, n *domain.Notification) (batch.DeliverySummary, error) {
	rule, ok := p.rules.Get(n.Type)
	if !ok {
		rule = domain.ProcessingRule{AllowedChannels: n.ChannelMask, DefaultPriority: n.Priority}
	}
	now := time.Now().UTC()
	if _, err := p.repo.UpdateStatus(ctx, n.ID, n.Status, domain.StatusProcessing, now); err != nil {
		return batch.DeliverySummary{}, fmt.Errorf("mark processing: %w", err)
	}
	n.Status = domain.StatusProcessing
	return p.dispatch(ctx, n, rule)
}

// processItem is the per-dequeued-item worker step.
func (p *Processor) processItem(ctx context.Context, item queue.Item) {
	log := p.log.With(zap.String("notification_id", item.NotificationID))

	n, err := p.repo.GetByID(ctx, item.NotificationID)
	if err != nil {
		log.Error("processor: failed to fetch notification", zap.Error(err))
		return
	}
	if n.Status == domain.StatusCancelled {
		log.Debug("processor: notification cancelled before processing")
		return
	}

	now := time.Now().UTC()
	if n.IsExpired(now) {
		_ = p.repo.MarkFailed(ctx, n.ID, "expired", n.Attempts, nil)
		return
	}

	rule, ok := p.rules.Get(n.Type)
	if !ok {
		rule = domain.ProcessingRule{AllowedChannels: n.ChannelMask, DefaultPriority: n.Priority}
	}

	if _, err := p.repo.UpdateStatus(ctx, n.ID, n.Status, domain.StatusProcessing, now); err != nil {
		log.Error("processor: failed to mark processing", zap.Error(err))
		return
	}
	n.Status = domain.StatusProcessing

	if deferred, err := p.applyQuietHours(ctx, n, now); err != nil {
		log.Error("processor: quiet hours check failed", zap.Error(err))
	} else if deferred {
		return
	}

	if rule.RateLimitPerHour > 0 || rule.RateLimitPerDay > 0 || p.rateDefaults.DefaultPerHour > 0 {
		perHour, perDay := rule.RateLimitPerHour, rule.RateLimitPerDay
		if perHour <= 0 {
			perHour = p.rateDefaults.DefaultPerHour
		}
		if perDay <= 0 {
			perDay = p.rateDefaults.DefaultPerDay
		}
		decision := p.limiter.Allow(n.RecipientID, n.Type, perHour, perDay, now)
		if !decision.Allowed {
			p.hooks.OnRateLimited(n.Type)
			_ = p.repo.MarkFailed(ctx, n.ID, "rate_limited:"+decision.Reason, n.Attempts, nil)
			return
		}
	}

	ttl := time.Duration(rule.DedupTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = p.dedupDefault
	}
	if ttl > 0 {
		fp := dedup.Fingerprint(n.Type, n.RecipientID, n.SenderID, n.ContentRefs.ContentKey())
		if p.dedupSet.SeenOrRemember(fp, ttl, now) {
			p.hooks.OnDeduplicated(n.Type)
			_ = p.repo.MarkFailed(ctx, n.ID, "duplicate", n.Attempts, nil)
			return
		}
	}

	if rule.Batchable && n.AllowBundling {
		if err := p.batchEngine.Admit(ctx, n, rule); err != nil {
			log.Error("processor: batch admission failed", zap.Error(err))
			return
		}
		p.hooks.OnBatched(n.Type)
		return
	}

	if _, err := p.dispatch(ctx, n, rule); err != nil {
		log.Warn("processor: dispatch reported failure", zap.Error(err))
	}
}

// applyQuietHours defers a non-urgent, quiet-hours-respecting
// notification to the end of the recipient's quiet window instead of
// dispatching it now. Returns true if the item was deferred.
func (p *Processor) applyQuietHours(ctx context.Context, n *domain.Notification, now time.Time) (bool, error) {
	if !n.RespectQuietHours || n.Priority == domain.PriorityUrgent {
		return false, nil
	}
	prefs, err := p.prefs.GetPreferences(ctx, n.RecipientID)
	if err != nil {
		return false, nil // no preferences on file: nothing to defer against
	}
	if !prefs.QuietHours.Active(now) || prefs.QuietHoursExempt(n.Type) {
		return false, nil
	}
	until := prefs.QuietHours.DeferUntil(now)
	return true, p.repo.MarkFailed(ctx, n.ID, "deferred_quiet_hours", n.Attempts, &until)
}

// dispatch fans the notification out across the effective channel
// intersection (notification mask ∩ rule mask ∩ preference mask),
// concurrently, and folds the per-channel results into one status write.
func (p *Processor) dispatch(ctx context.Context, n *domain.Notification, rule domain.ProcessingRule) (batch.DeliverySummary, error) {
	effective := p.effectiveChannels(ctx, n, rule)
	if len(effective) == 0 {
		_ = p.repo.MarkFailed(ctx, n.ID, "no_channels", n.Attempts, nil)
		return batch.DeliverySummary{}, domain.ErrNoChannels
	}

	type outcome struct {
		ch        domain.Channel
		err       error
		delivered int
	}
	results := make(chan outcome, len(effective))
	var wg sync.WaitGroup
	start := time.Now()

	for _, ch := range effective {
		adapter, ok := p.adapters[ch]
		if !ok {
			results <- outcome{ch: ch, err: fmt.Errorf("no adapter registered for channel %s", ch)}
			continue
		}
		wg.Add(1)
		go func(ch domain.Channel, a channel.Adapter) {
			defer wg.Done()
			res, err := a.SendToUser(ctx, n, n.RecipientID)
			delivered := 0
			if res != nil {
				delivered = res.Delivered
			}
			results <- outcome{ch: ch, err: err, delivered: delivered}
		}(ch, adapter)
	}
	wg.Wait()
	close(results)

	var delivered, attempted int
	var transientFailure bool
	var lastErr error
	for o := range results {
		attempted++
		if o.err == nil {
			delivered++
			p.hooks.OnSent(o.ch, time.Since(start))
			continue
		}
		lastErr = o.err
		p.hooks.OnFailed(o.ch)
		if p.classifier(o.err) == channel.FailureTransient {
			transientFailure = true
		}
	}

	now := time.Now().UTC()
	summary := batch.DeliverySummary{ChannelsAttempted: attempted, ChannelsDelivered: delivered}

	switch {
	case delivered > 0:
		_, err := p.repo.UpdateStatus(ctx, n.ID, n.Status, domain.StatusDelivered, now)
		return summary, err
	case transientFailure:
		p.scheduleRetry(ctx, n, lastErr)
		return summary, lastErr
	default:
		_ = p.repo.MarkFailed(ctx, n.ID, errString(lastErr), n.Attempts, nil)
		return summary, lastErr
	}
}

// effectiveChannels intersects the notification's own mask with the
// rule's allowed channels and the recipient's preference mask for this
// type, dropping any sender the recipient has blocked entirely.
func (p *Processor) effectiveChannels(ctx context.Context, n *domain.Notification, rule domain.ProcessingRule) []domain.Channel {
	effective := n.ChannelMask.Intersect(rule.AllowedChannels)

	prefs, err := p.prefs.GetPreferences(ctx, n.RecipientID)
	if err == nil {
		if prefs.IsBlocked(n.SenderID) {
			return nil
		}
		effective = effective.Intersect(prefs.EffectiveMask(n.Type))
	}
	return effective.Slice()
}

// scheduleRetry re-enqueues n with exponential backoff, up to
// maxAttempts, after which it is marked permanently failed.
func (p *Processor) scheduleRetry(ctx context.Context, n *domain.Notification, sendErr error) {
	attempts := n.Attempts + 1
	if attempts >= p.maxAttempts {
		_ = p.repo.MarkFailed(ctx, n.ID, errString(sendErr), attempts, nil)
		return
	}
	idx := n.Attempts
	if idx >= len(p.backoff) {
		idx = len(p.backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	next := time.Now().UTC().Add(p.backoff[idx])
	_ = p.repo.MarkFailed(ctx, n.ID, errString(sendErr), attempts, &next)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ batch.Dispatcher = (*Processor)(nil)
