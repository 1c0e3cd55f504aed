package domain

import "time"

// BatchStatus tracks an open digest's lifecycle: open while accepting
// members, flushed once dispatched.
type BatchStatus string

const (
	BatchOpen    BatchStatus = "open"
	BatchFlushed BatchStatus = "flushed"
)

// Batch is an open digest accumulating same-(recipient,type,group_key)
// notifications until a flush trigger fires (spec §4.7): size, window
// expiry, or an explicit FlushUser call. On flush it is rendered into a
// single summarizing Notification and dispatched immediately.
type Batch struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	GroupKey    string           `json:"group_key"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// MemberIDs records which notification IDs were folded into this
	// digest, for auditing (spec §4.7).
	MemberIDs []string `json:"member_ids"`
	Priority  Priority `json:"priority"` // max(priority) across members

	Status       BatchStatus `json:"status"`
	FlushedAt    *time.Time  `json:"flushed_at,omitempty"`
	DigestNotifID *string    `json:"digest_notification_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Batch) IsFull(maxSize int) bool {
	return len(b.MemberIDs) >= maxSize
}

func (b *Batch) IsExpired(now time.Time) bool {
	return now.After(b.WindowEnd)
}

// AddMember folds a notification into the batch, raising priority to the
// max seen so far (spec §4.7's "priority = max(priority of members)").
func (b *Batch) AddMember(notifID string, p Priority) {
	b.MemberIDs = append(b.MemberIDs, notifID)
	b.Priority = MaxPriority(b.Priority, p)
}
