package queue

import (
	"context"
	"fmt"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// PriorityQueue dispatches items to one of four buffered channels based on
// priority.
//
// Buffer sizes reflect expected traffic ratios:
//
//	Urgent: 500    — system alerts; must never accumulate
//	High:   1 000  — direct messages and similar; small buffer applies
//	                 back-pressure quickly
//	Normal: 5 000  — bulk of traffic
//	Low:    2 000  — background / best-effort
//
// Workers dequeue via the double-select pattern, which guarantees that
// higher-priority items are always served before lower ones, while still
// allowing fair competition among lower tiers when higher ones are empty.
type PriorityQueue struct {
	urgent chan Item
	high   chan Item
	normal chan Item
	low    chan Item
}

func New() *PriorityQueue {
	return &PriorityQueue{
		urgent: make(chan Item, 500),
		high:   make(chan Item, 1000),
		normal: make(chan Item, 5000),
		low:    make(chan Item, 2000),
	}
}

// Enqueue places an item on the appropriate priority channel. It is
// non-blocking: if the target channel is full, ErrQueueFull is returned
// immediately rather than blocking the caller (the HTTP handler).
func (q *PriorityQueue) Enqueue(item Item) error {
	var ch chan Item
	switch item.Priority {
	case domain.PriorityUrgent:
		ch = q.urgent
	case domain.PriorityHigh:
		ch = q.high
	case domain.PriorityNormal:
		ch = q.normal
	case domain.PriorityLow:
		ch = q.low
	default:
		return fmt.Errorf("unknown priority %q", item.Priority)
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
// Priority guarantee — the double-select pattern:
//  1. A non-blocking cascade checks urgent, then high, before entering a
//     fair wait. If an item is waiting in a higher tier it is returned
//     immediately regardless of what's queued below it.
//  2. Only when urgent and high are both empty does the goroutine enter a
//     fair blocking select across all four channels plus the done signal.
//     This prevents high-priority starvation while still letting the
//     worker sleep instead of spinning.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *PriorityQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.urgent:
		return item, true
	default:
	}
	select {
	case item := <-q.high:
		return item, true
	default:
	}

	select {
	case item := <-q.urgent:
		return item, true
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each priority tier.
// Used by the metrics handler for the queue-depth snapshot.
func (q *PriorityQueue) Depths() (urgent, high, normal, low int) {
	return len(q.urgent), len(q.high), len(q.normal), len(q.low)
}
