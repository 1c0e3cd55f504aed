package channel

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/socket"
)

// registrySender is the subset of *socket.Registry this adapter needs,
// kept narrow so tests can substitute a fake without a live websocket.
type registrySender interface {
	SendToUser(userID string, f socket.Frame) int
}

// SocketAdapter is a thin wrapper over the connection registry: the
// real-time channel has no separate endpoint concept and no retry-worthy
// transport error, since a missing connection just means the recipient
// isn't online right now.
type SocketAdapter struct {
	registry registrySender
	sent     atomic.Int64
}

func NewSocketAdapter(registry registrySender) *SocketAdapter {
	return &SocketAdapter{registry: registry}
}

func (a *SocketAdapter) Channel() domain.Channel { return domain.ChannelInApp }

// SendOne is not meaningful for sockets (there is no single-endpoint
// concept distinct from the user's live connections); it delegates to
// SendToUser using endpoint as the recipient id.
func (a *SocketAdapter) SendOne(ctx context.Context, n *domain.Notification, endpoint string) error {
	_, err := a.SendToUser(ctx, n, endpoint)
	return err
}

func (a *SocketAdapter) SendToUser(ctx context.Context, n *domain.Notification, recipientID string) (*SendResult, error) {
	f := socket.Frame{
		Type:      socket.FrameNotification,
		ID:        n.ID,
		NotifType: string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Action:    n.ActionLink,
		Data:      n.TemplateVars,
	}
	delivered := a.registry.SendToUser(recipientID, f)
	a.sent.Add(int64(delivered))
	// A recipient with no live socket is not a failure: in-app delivery
	// simply has nothing to flush until they reconnect and the
	// notification is picked up from their unread list instead.
	return &SendResult{Attempted: delivered, Delivered: delivered}, nil
}

func (a *SocketAdapter) Stats() Stats {
	return Stats{Sent: a.sent.Load()}
}

func (a *SocketAdapter) Health(ctx context.Context) error {
	if a.registry == nil {
		return fmt.Errorf("socket: registry not configured")
	}
	return nil
}

var _ Adapter = (*SocketAdapter)(nil)
