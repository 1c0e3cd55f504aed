package domain

import (
	"sync"
	"sync/atomic"
)

// ProcessingRule is the per-type policy consulted during admission: which
// channels a type is allowed to reach at all, its default priority, and
// whether instances of it are eligible for batching into a digest.
type ProcessingRule struct {
	Type            NotificationType `json:"type"`
	AllowedChannels ChannelMask      `json:"allowed_channels"`
	DefaultPriority Priority         `json:"default_priority"`
	Batchable       bool             `json:"batchable"`
	BatchWindow     int64            `json:"batch_window_seconds"`
	MaxBatchSize    int              `json:"max_batch_size"`
	RateLimitPerHour int             `json:"rate_limit_per_hour"`
	RateLimitPerDay  int             `json:"rate_limit_per_day"`
	DedupTTLSeconds  int64           `json:"dedup_ttl_seconds"`
}

// DefaultRuleTable seeds one rule per known notification type, following
// the posture in spec §4.2: direct messages and system alerts are never
// batched and always reach every channel; social events (like, comment,
// follow, mention, repost) default to batchable with a ten-minute window.
func DefaultRuleTable() map[NotificationType]ProcessingRule {
	all := NewChannelMask(ChannelInApp, ChannelPush, ChannelEmail)
	rules := make(map[NotificationType]ProcessingRule, len(AllNotificationTypes()))
	for _, t := range AllNotificationTypes() {
		rules[t] = ProcessingRule{
			Type:             t,
			AllowedChannels:  all,
			DefaultPriority:  PriorityNormal,
			Batchable:        true,
			BatchWindow:      600,
			MaxBatchSize:     50,
			RateLimitPerHour: 100,
			RateLimitPerDay:  500,
			DedupTTLSeconds:  300,
		}
	}
	dm := rules[TypeDirectMessage]
	dm.Batchable = false
	dm.DefaultPriority = PriorityHigh
	dm.RateLimitPerHour = 1000
	dm.RateLimitPerDay = 5000
	rules[TypeDirectMessage] = dm

	sys := rules[TypeSystemAlert]
	sys.Batchable = false
	sys.DefaultPriority = PriorityUrgent
	sys.RateLimitPerHour = 1000
	sys.RateLimitPerDay = 5000
	rules[TypeSystemAlert] = sys

	return rules
}

// RuleTable is a copy-on-write map of ProcessingRules, safe for concurrent
// lookups from every worker while an admin endpoint occasionally replaces
// a single rule. Readers never block on a writer.
type RuleTable struct {
	writeMu sync.Mutex
	rules   atomic.Pointer[map[NotificationType]ProcessingRule]
}

func NewRuleTable(initial map[NotificationType]ProcessingRule) *RuleTable {
	if initial == nil {
		initial = DefaultRuleTable()
	}
	t := &RuleTable{}
	t.rules.Store(&initial)
	return t
}

func (t *RuleTable) Get(nt NotificationType) (ProcessingRule, bool) {
	r, ok := (*t.rules.Load())[nt]
	return r, ok
}

// Set replaces the rule for a single type, copying the underlying map so
// any in-flight reader of the old map is unaffected.
func (t *RuleTable) Set(r ProcessingRule) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	cur := *t.rules.Load()
	next := make(map[NotificationType]ProcessingRule, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[r.Type] = r
	t.rules.Store(&next)
}

func (t *RuleTable) All() map[NotificationType]ProcessingRule {
	return *t.rules.Load()
}
