package queue

import "github.com/notifyhub/notification-engine/internal/domain"

// Item is the minimal data placed on the queue. Workers fetch the full
// Notification from the repository using the ID, keeping the queue
// lightweight and the repository row authoritative — a notification may
// fan out across several channels, so the queue itself carries no
// channel information, only enough to route by priority.
type Item struct {
	NotificationID string
	Priority       domain.Priority
}
