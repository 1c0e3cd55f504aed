package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/domain"
)

// pushPayload is the JSON body posted to the push gateway, generalizing
// the teacher's webhook SendRequest to one token per request instead of
// a single recipient string.
type pushPayload struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Action   string `json:"action,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// deviceLister is the subset of the device repository (or its Redis
// read-through cache) the push adapter needs.
type deviceLister interface {
	ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error)
}

// deviceInvalidator deactivates a registration whose token the gateway
// reported as permanently dead.
type deviceInvalidator interface {
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
}

// PushAdapter POSTs one request per active device registration to a
// webhook-style gateway, generalizing the teacher's single-recipient
// WebhookProvider to a per-user fan-out across every device on file.
type PushAdapter struct {
	gatewayURL  string
	httpClient  *http.Client
	devices     deviceLister
	invalidate  deviceInvalidator
	limiter     *rate.Limiter
	tokenExpiry time.Duration

	sent   atomic.Int64
	failed atomic.Int64
}

func NewPushAdapter(cfg config.PushConfig, devices deviceLister, invalidate deviceInvalidator) *PushAdapter {
	a := &PushAdapter{
		gatewayURL:  cfg.GatewayURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		devices:     devices,
		invalidate:  invalidate,
		tokenExpiry: cfg.TokenExpiry,
	}
	if cfg.PerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(rateInterval(cfg.PerMinute)), cfg.PerMinute)
	}
	return a
}

func (a *PushAdapter) Channel() domain.Channel { return domain.ChannelPush }

// SendOne posts directly to a known device token, bypassing the device
// repository lookup; used when the caller already holds the token.
func (a *PushAdapter) SendOne(ctx context.Context, n *domain.Notification, endpoint string) error {
	return a.post(ctx, n, endpoint, "")
}

// SendToUser fans the notification out to every active device
// registration on file for recipientID, POSTing one request per device
// and invalidating any registration the gateway reports dead.
func (a *PushAdapter) SendToUser(ctx context.Context, n *domain.Notification, recipientID string) (*SendResult, error) {
	devices, err := a.devices.ListUserDevices(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("push: list devices: %w", err)
	}

	now := time.Now().UTC()
	result := &SendResult{}
	for _, d := range devices {
		if !d.Active {
			continue
		}
		if d.TokenExpired(now, a.tokenExpiry) {
			if a.invalidate != nil {
				_ = a.invalidate.DeactivateDevice(ctx, recipientID, d.ID)
			}
			continue
		}
		result.Attempted++
		err := a.post(ctx, n, d.Token, string(d.Platform))
		if err == nil {
			result.Delivered++
			continue
		}
		if isDeadToken(err) && a.invalidate != nil {
			_ = a.invalidate.DeactivateDevice(ctx, recipientID, d.ID)
		}
	}
	if result.Attempted > 0 && result.Delivered == 0 {
		return result, fmt.Errorf("push: delivered to none of %d device(s)", result.Attempted)
	}
	return result, nil
}

type errDeadToken struct{ status int }

func (e errDeadToken) Error() string { return fmt.Sprintf("push: gateway reported dead token (status %d)", e.status) }

func isDeadToken(err error) bool {
	_, ok := err.(errDeadToken)
	return ok
}

func (a *PushAdapter) post(ctx context.Context, n *domain.Notification, token, platform string) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(pushPayload{
		Token:    token,
		Platform: platform,
		Title:    n.Title,
		Body:     n.Body,
		Action:   n.ActionLink,
	})
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.failed.Add(1)
		return fmt.Errorf("push: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		a.failed.Add(1)
		return errDeadToken{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusAccepted {
		a.failed.Add(1)
		return fmt.Errorf("push: unexpected gateway status %d", resp.StatusCode)
	}

	var pr pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		a.failed.Add(1)
		return fmt.Errorf("push: decode response: %w", err)
	}
	a.sent.Add(1)
	return nil
}

func (a *PushAdapter) Stats() Stats {
	return Stats{Sent: a.sent.Load(), Failed: a.failed.Load()}
}

// Health pings the gateway with a lightweight HEAD request.
func (a *PushAdapter) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.gatewayURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: health check: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

var _ Adapter = (*PushAdapter)(nil)
