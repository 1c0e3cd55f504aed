// Package channel delivers notifications over their concrete transports.
// Every adapter implements the same capability interface so the worker
// pool can dispatch to any channel without knowing its transport.
package channel

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// SendResult reports the outcome of one delivery attempt against one
// channel, independent of how many underlying transport calls it took
// (e.g. a push fan-out across several devices).
type SendResult struct {
	Delivered int // number of concrete endpoints (devices, sockets) reached
	Attempted int
}

// FailureClass distinguishes errors worth retrying from ones that will
// never succeed, so a worker can decide between requeueing with backoff
// and marking the notification permanently failed.
type FailureClass int

const (
	FailurePermanent FailureClass = iota
	FailureTransient
)

// FailureClassifier maps a transport error to a FailureClass. The
// processor holds a single classifier (DefaultClassifier unless another
// is injected) and applies it to the errors of every channel alike.
type FailureClassifier func(error) FailureClass

// Adapter delivers a notification over one channel.
type Adapter interface {
	Channel() domain.Channel

	// SendOne delivers to a single known endpoint (an email address, a
	// device token); channels without a single-endpoint concept (socket)
	// implement this as a thin wrapper over SendToUser.
	SendOne(ctx context.Context, n *domain.Notification, endpoint string) error

	// SendToUser fans a notification out to every endpoint registered
	// for recipientID on this channel (all of a user's devices, all of
	// a user's live sockets).
	SendToUser(ctx context.Context, n *domain.Notification, recipientID string) (*SendResult, error)

	// Stats reports lightweight operational counters for health/metrics
	// endpoints; adapters with nothing meaningful to report return a
	// zero Stats.
	Stats() Stats

	// Health reports whether the adapter's downstream dependency (SMTP
	// relay, redis, the socket registry itself) is currently reachable.
	Health(ctx context.Context) error
}

// Stats is a snapshot of an adapter's send counters.
type Stats struct {
	Sent   int64
	Failed int64
}

// DefaultClassifier classifies network-shaped errors (timeouts,
// connection resets, a cancelled or deadline-exceeded context) as
// transient and everything else (bad request, permanently invalid
// endpoint) as permanent, generalizing the teacher's webhook
// status-code handling: a non-2xx/3xx HTTP status from a provider was
// always treated as a hard failure there, never retried automatically.
func DefaultClassifier(err error) FailureClass {
	if err == nil {
		return FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	return FailurePermanent
}

// RateCap bounds an adapter's outbound send rate, mirroring the
// teacher's per-channel token bucket but scoped to a single adapter
// instead of shared across all channels.
type RateCap struct {
	PerMinute int
	PerHour   int
}

func (r RateCap) zero() bool { return r.PerMinute <= 0 && r.PerHour <= 0 }

// now is overridable in tests that need deterministic rate-window math;
// production code always uses time.Now.
var now = time.Now
