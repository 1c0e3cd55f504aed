package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	gomail "gopkg.in/gomail.v2"

	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/render"
	"github.com/notifyhub/notification-engine/internal/repository"
)

func rateInterval(perMinute int) time.Duration   { return time.Minute / time.Duration(perMinute) }
func rateIntervalHour(perHour int) time.Duration { return time.Hour / time.Duration(perHour) }

// EmailAdapter delivers notifications via SMTP using gomail, the way the
// teacher's notifiers package does it, generalized to look the
// recipient's address up from preferences rather than carrying it on
// the notification itself, and capped per-minute and per-hour instead
// of unbounded.
type EmailAdapter struct {
	dialer *gomail.Dialer
	from   string
	prefs  repository.PreferencesRepository

	minuteLimiter *rate.Limiter
	hourLimiter   *rate.Limiter

	sent   atomic.Int64
	failed atomic.Int64
}

func NewEmailAdapter(cfg config.EmailConfig, prefs repository.PreferencesRepository) *EmailAdapter {
	a := &EmailAdapter{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:   cfg.From,
		prefs:  prefs,
	}
	if cfg.PerMinute > 0 {
		a.minuteLimiter = rate.NewLimiter(rate.Every(rateInterval(cfg.PerMinute)), cfg.PerMinute)
	}
	if cfg.PerHour > 0 {
		a.hourLimiter = rate.NewLimiter(rate.Every(rateIntervalHour(cfg.PerHour)), cfg.PerHour)
	}
	return a
}

func (a *EmailAdapter) Channel() domain.Channel { return domain.ChannelEmail }

// SendOne emails the notification to a known address, waiting on both
// rate limiters before dialing.
func (a *EmailAdapter) SendOne(ctx context.Context, n *domain.Notification, endpoint string) error {
	if a.minuteLimiter != nil {
		if err := a.minuteLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	if a.hourLimiter != nil {
		if err := a.hourLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetHeader("To", endpoint)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", render.Text(n.Body, n.TemplateVars))
	if n.ActionLink != "" {
		m.AddAlternative("text/html", render.HTML(n.Body, n.TemplateVars)+
			fmt.Sprintf(`<p><a href="%s">View</a></p>`, n.ActionLink))
	}

	if err := a.dialer.DialAndSend(m); err != nil {
		a.failed.Add(1)
		return fmt.Errorf("email: dial and send: %w", err)
	}
	a.sent.Add(1)
	return nil
}

// SendToUser looks the recipient's email address up via preferences and
// delivers to it. A user with no email address on file is not an error:
// email is simply not one of their effective channels for this send.
func (a *EmailAdapter) SendToUser(ctx context.Context, n *domain.Notification, recipientID string) (*SendResult, error) {
	prefs, err := a.prefs.GetPreferences(ctx, recipientID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("email: load preferences: %w", err)
	}
	if prefs == nil || prefs.EmailAddress == "" {
		return &SendResult{}, nil
	}

	if err := a.SendOne(ctx, n, prefs.EmailAddress); err != nil {
		return &SendResult{Attempted: 1}, err
	}
	return &SendResult{Attempted: 1, Delivered: 1}, nil
}

func (a *EmailAdapter) Stats() Stats {
	return Stats{Sent: a.sent.Load(), Failed: a.failed.Load()}
}

// Health dials the SMTP server without sending, surfacing auth or
// connectivity failures before they show up as a burst of send errors.
func (a *EmailAdapter) Health(ctx context.Context) error {
	closer, err := a.dialer.Dial()
	if err != nil {
		return fmt.Errorf("email: smtp dial: %w", err)
	}
	return closer.Close()
}

var _ Adapter = (*EmailAdapter)(nil)
