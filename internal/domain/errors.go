package domain

import "errors"

// Sentinel errors surfaced by the core. Handlers translate these to HTTP
// status codes via a single mapError function; workers record them against
// a notification's status rather than propagating them to producers.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict: idempotency key already exists")
	ErrInvalidType      = errors.New("invalid notification type")
	ErrInvalidPriority  = errors.New("invalid priority: must be low, normal, high, or urgent")
	ErrInvalidRecipient = errors.New("recipient must not be empty")
	ErrInvalidContent   = errors.New("title and body must not be empty")
	ErrInvalidChannel   = errors.New("invalid channel in channel_mask")
	ErrEmptyChannelMask = errors.New("channel_mask must not be empty")
	ErrInvalidSchedule  = errors.New("scheduled_at must not precede created_at")
	ErrInvalidExpiry    = errors.New("expires_at must be after created_at")
	ErrAlreadyExpired   = errors.New("notification is already expired")
	ErrBatchTooLarge    = errors.New("batch exceeds maximum of 1000 notifications")
	ErrBatchEmpty       = errors.New("batch must contain at least one notification")
	ErrAlreadyCancelled = errors.New("notification is already cancelled")
	ErrNotCancellable   = errors.New("notification cannot be cancelled in its current status")
	ErrQueueFull        = errors.New("queue is at capacity, try again later")
	ErrBlockedSender    = errors.New("sender is blocked by recipient preferences")
	ErrNoChannels       = errors.New("no channel survives preference and rule intersection")
	ErrShuttingDown     = errors.New("server is shutting down")
	ErrDeviceNotFound   = errors.New("device registration not found")
	ErrInvalidPlatform  = errors.New("invalid device platform: must be ios, android, or web")
)
