package ratelimit

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Decision reports why Allow rejected an admission, if it did.
type Decision struct {
	Allowed bool
	Reason  string // "hourly_cap", "daily_cap", "throttled"
	RetryAt time.Time
}

// counter tracks one (user, type)'s admission timestamps, ascending, so
// both the trailing-60-minute and trailing-24-hour counts can be read as
// of any instant rather than a count aligned to a fixed clock boundary.
// Entries older than the day horizon are pruned lazily on access, the
// same reap-on-access approach internal/dedup uses for its fingerprints.
type counter struct {
	times          []time.Time
	throttledUntil time.Time
}

// prune drops every timestamp at or before cutoff, keeping only entries
// strictly newer than it (an event exactly window-duration old has fully
// aged out). times is kept sorted ascending (admissions arrive in
// non-decreasing time order), so the cut point is a binary search rather
// than a scan.
func (c *counter) prune(cutoff time.Time) {
	idx := sort.Search(len(c.times), func(i int) bool { return c.times[i].After(cutoff) })
	if idx > 0 {
		c.times = append(c.times[:0], c.times[idx:]...)
	}
}

// countSince returns how many recorded timestamps fall strictly after cutoff.
func (c *counter) countSince(cutoff time.Time) int {
	idx := sort.Search(len(c.times), func(i int) bool { return c.times[i].After(cutoff) })
	return len(c.times) - idx
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// Limiter enforces per-(user_id,type) hourly and daily admission caps,
// sharded by hash(user_id) so no single mutex serializes every admission
// decision across the whole processor.
type Limiter struct {
	shards []*shard
}

func New(shardCount int) *Limiter {
	if shardCount <= 0 {
		shardCount = 32
	}
	l := &Limiter{shards: make([]*shard, shardCount)}
	for i := range l.shards {
		l.shards[i] = &shard{counters: make(map[string]*counter)}
	}
	return l
}

func key(userID string, t domain.NotificationType) string {
	return userID + "\x00" + string(t)
}

func (l *Limiter) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Allow reports whether a new notification of type t for userID may be
// admitted under perHour/perDay caps, given the current time. A granted
// call consumes one unit of both windows.
func (l *Limiter) Allow(userID string, t domain.NotificationType, perHour, perDay int, now time.Time) Decision {
	k := key(userID, t)
	sh := l.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[k]
	if !ok {
		c = &counter{}
		sh.counters[k] = c
	}

	if now.Before(c.throttledUntil) {
		return Decision{Allowed: false, Reason: "throttled", RetryAt: c.throttledUntil}
	}

	dayCutoff := now.Add(-24 * time.Hour)
	c.prune(dayCutoff)

	hourCutoff := now.Add(-time.Hour)
	hourCount := c.countSince(hourCutoff)
	dayCount := len(c.times)

	if perHour > 0 && hourCount >= perHour {
		oldestInWindow := c.times[len(c.times)-hourCount]
		return Decision{Allowed: false, Reason: "hourly_cap", RetryAt: oldestInWindow.Add(time.Hour)}
	}
	if perDay > 0 && dayCount >= perDay {
		return Decision{Allowed: false, Reason: "daily_cap", RetryAt: c.times[0].Add(24 * time.Hour)}
	}

	c.times = append(c.times, now)
	return Decision{Allowed: true}
}

// ThrottleUntil imposes an explicit cooldown on a (user,type) pair,
// overriding the hourly/daily caps until it elapses — used when an
// upstream signal (e.g. repeated adapter failures for that recipient)
// warrants suppressing further admission regardless of remaining budget.
func (l *Limiter) ThrottleUntil(userID string, t domain.NotificationType, until time.Time) {
	k := key(userID, t)
	sh := l.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.counters[k]
	if !ok {
		c = &counter{}
		sh.counters[k] = c
	}
	c.throttledUntil = until
}
