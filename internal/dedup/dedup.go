package dedup

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Fingerprint is the dedup key: type‖recipient‖sender‖content_key.
func Fingerprint(t domain.NotificationType, recipientID, senderID, contentKey string) string {
	return string(t) + "\x00" + recipientID + "\x00" + senderID + "\x00" + contentKey
}

type entry struct {
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Set is a sharded, in-memory, TTL-bounded fingerprint set. SeenOrRemember
// is the only entry point workers need: it atomically checks and inserts
// under a single shard lock, so two concurrent workers racing the same
// fingerprint can never both see "not present".
type Set struct {
	shards []*shard
}

func New(shardCount int) *Set {
	if shardCount <= 0 {
		shardCount = 32
	}
	s := &Set{shards: make([]*shard, shardCount)}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

func (s *Set) shardFor(fingerprint string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// SeenOrRemember reports whether fingerprint was already recorded within
// its TTL. If not, it records it with the given TTL and returns false.
func (s *Set) SeenOrRemember(fingerprint string, ttl time.Duration, now time.Time) bool {
	sh := s.shardFor(fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[fingerprint]; ok && now.Before(e.expiresAt) {
		return true
	}
	sh.entries[fingerprint] = entry{expiresAt: now.Add(ttl)}
	return false
}

// Sweep removes expired entries from every shard, bounding memory growth
// between calls. Intended to run on a periodic timer, independent of any
// particular fingerprint's own TTL expiry.
func (s *Set) Sweep(now time.Time) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expiresAt) {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}
