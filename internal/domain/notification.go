package domain

import "time"

// ContentRefs holds optional references to the content a notification is
// about. The dedup fingerprint uses the most specific of these present.
type ContentRefs struct {
	CommentID      string `json:"comment_id,omitempty"`
	ContentItemID  string `json:"content_item_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ContentKey returns the most specific reference present, per spec §4.6:
// comment id, then content-item id, then conversation id, then empty.
func (c ContentRefs) ContentKey() string {
	switch {
	case c.CommentID != "":
		return c.CommentID
	case c.ContentItemID != "":
		return c.ContentItemID
	case c.ConversationID != "":
		return c.ConversationID
	default:
		return ""
	}
}

// Notification is the core domain entity: a single event targeted at a
// recipient. It is immutable after enqueue except for its status fields.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	SenderID    string           `json:"sender_id"` // "system" for platform-generated alerts
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	ActionLink  string           `json:"action_link,omitempty"`

	ContentRefs ContentRefs `json:"content_refs"`

	ChannelMask ChannelMask `json:"channel_mask"`
	Priority    Priority    `json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ExpiresAt   time.Time  `json:"expires_at"`

	Status        Status     `json:"status"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	Attempts      int        `json:"attempts"`
	FailureReason string     `json:"failure_reason,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`

	GroupKey string `json:"group_key,omitempty"`

	// BatchID is set on a member once it has been folded into a digest.
	BatchID *string `json:"batch_id,omitempty"`

	TemplateVars map[string]string `json:"template_vars,omitempty"`

	AllowBundling      bool `json:"allow_bundling"`
	RespectQuietHours  bool `json:"respect_quiet_hours"`

	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

func (n *Notification) IsExpired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// Validate checks the invariants spec §3 and §4.1 require at admission:
// non-empty recipient, non-empty title/body, non-empty channel mask,
// created_at <= scheduled_at < expires_at, and not already expired.
func (n *Notification) Validate(now time.Time) error {
	if n.RecipientID == "" {
		return ErrInvalidRecipient
	}
	if !n.Type.IsValid() {
		return ErrInvalidType
	}
	if !n.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if n.Title == "" || n.Body == "" {
		return ErrInvalidContent
	}
	if n.ChannelMask.Len() == 0 {
		return ErrEmptyChannelMask
	}
	for c := range n.ChannelMask {
		if !c.IsValid() {
			return ErrInvalidChannel
		}
	}
	if n.ScheduledAt.Before(n.CreatedAt) {
		return ErrInvalidSchedule
	}
	if !n.ExpiresAt.After(n.CreatedAt) {
		return ErrInvalidExpiry
	}
	if n.IsExpired(now) {
		return ErrAlreadyExpired
	}
	return nil
}

// CreateNotificationRequest is the inbound payload for a single notification.
type CreateNotificationRequest struct {
	RecipientID       string            `json:"recipient_id" validate:"required"`
	SenderID          string            `json:"sender_id"`
	Type              NotificationType  `json:"type" validate:"required"`
	Title             string            `json:"title" validate:"required"`
	Body              string            `json:"body" validate:"required"`
	ActionLink        string            `json:"action_link,omitempty"`
	ContentRefs       ContentRefs       `json:"content_refs,omitempty"`
	ChannelMask       []Channel         `json:"channel_mask" validate:"required,min=1"`
	Priority          Priority          `json:"priority,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduled_at,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	GroupKey          string            `json:"group_key,omitempty"`
	TemplateVars      map[string]string `json:"template_vars,omitempty"`
	AllowBundling     bool              `json:"allow_bundling"`
	RespectQuietHours bool              `json:"respect_quiet_hours"`
}

// CreateBatchRequest wraps a slice of notification requests submitted
// together (spec §4.1 admission batch, distinct from the batching engine's
// digest batch in §4.7).
type CreateBatchRequest struct {
	Notifications []CreateNotificationRequest `json:"notifications"`
}

// ListFilter holds query parameters for paginated notification listing.
type ListFilter struct {
	RecipientID *string
	Status      *Status
	Type        *NotificationType
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}
