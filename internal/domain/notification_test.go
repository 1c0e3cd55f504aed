package domain_test

import (
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

func validNotification(now time.Time) domain.Notification {
	return domain.Notification{
		ID:          "n1",
		RecipientID: "user-1",
		SenderID:    "user-2",
		Type:        domain.TypeLike,
		Title:       "New like",
		Body:        "user-2 liked your post",
		ChannelMask: domain.NewChannelMask(domain.ChannelInApp, domain.ChannelPush),
		Priority:    domain.PriorityNormal,
		CreatedAt:   now,
		ScheduledAt: now,
		ExpiresAt:   now.Add(24 * time.Hour),
		Status:      domain.StatusPending,
	}
}

func TestNotification_Validate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid notification passes", func(t *testing.T) {
		n := validNotification(now)
		if err := n.Validate(now); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		n := validNotification(now)
		n.Type = "unknown"
		if err := n.Validate(now); err != domain.ErrInvalidType {
			t.Fatalf("expected ErrInvalidType, got %v", err)
		}
	})

	t.Run("invalid priority", func(t *testing.T) {
		n := validNotification(now)
		n.Priority = "urgent-ish"
		if err := n.Validate(now); err != domain.ErrInvalidPriority {
			t.Fatalf("expected ErrInvalidPriority, got %v", err)
		}
	})

	t.Run("empty recipient", func(t *testing.T) {
		n := validNotification(now)
		n.RecipientID = ""
		if err := n.Validate(now); err != domain.ErrInvalidRecipient {
			t.Fatalf("expected ErrInvalidRecipient, got %v", err)
		}
	})

	t.Run("empty title or body", func(t *testing.T) {
		n := validNotification(now)
		n.Body = ""
		if err := n.Validate(now); err != domain.ErrInvalidContent {
			t.Fatalf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("empty channel mask", func(t *testing.T) {
		n := validNotification(now)
		n.ChannelMask = domain.NewChannelMask()
		if err := n.Validate(now); err != domain.ErrEmptyChannelMask {
			t.Fatalf("expected ErrEmptyChannelMask, got %v", err)
		}
	})

	t.Run("invalid channel in mask", func(t *testing.T) {
		n := validNotification(now)
		n.ChannelMask = domain.NewChannelMask(domain.Channel("fax"))
		if err := n.Validate(now); err != domain.ErrInvalidChannel {
			t.Fatalf("expected ErrInvalidChannel, got %v", err)
		}
	})

	t.Run("scheduled before created", func(t *testing.T) {
		n := validNotification(now)
		n.ScheduledAt = now.Add(-time.Minute)
		if err := n.Validate(now); err != domain.ErrInvalidSchedule {
			t.Fatalf("expected ErrInvalidSchedule, got %v", err)
		}
	})

	t.Run("expiry not after created", func(t *testing.T) {
		n := validNotification(now)
		n.ExpiresAt = now
		if err := n.Validate(now); err != domain.ErrInvalidExpiry {
			t.Fatalf("expected ErrInvalidExpiry, got %v", err)
		}
	})

	t.Run("already expired", func(t *testing.T) {
		n := validNotification(now)
		n.ExpiresAt = now.Add(time.Hour)
		later := now.Add(2 * time.Hour)
		if err := n.Validate(later); err != domain.ErrAlreadyExpired {
			t.Fatalf("expected ErrAlreadyExpired, got %v", err)
		}
	})

	t.Run("all valid types accepted", func(t *testing.T) {
		for _, nt := range domain.AllNotificationTypes() {
			n := validNotification(now)
			n.Type = nt
			if err := n.Validate(now); err != nil {
				t.Fatalf("type %q: expected no error, got %v", nt, err)
			}
		}
	})

	t.Run("all valid priorities accepted", func(t *testing.T) {
		for _, p := range []domain.Priority{domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityUrgent} {
			n := validNotification(now)
			n.Priority = p
			if err := n.Validate(now); err != nil {
				t.Fatalf("priority %q: expected no error, got %v", p, err)
			}
		}
	})
}

func TestStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from domain.Status
		to   domain.Status
		want bool
	}{
		{domain.StatusPending, domain.StatusQueued, true},
		{domain.StatusQueued, domain.StatusProcessing, true},
		{domain.StatusProcessing, domain.StatusSent, true},
		{domain.StatusSent, domain.StatusDelivered, true},
		{domain.StatusDelivered, domain.StatusRead, true},
		{domain.StatusProcessing, domain.StatusPending, false},
		{domain.StatusRead, domain.StatusSent, false},
		{domain.StatusPending, domain.StatusFailed, true},
		{domain.StatusQueued, domain.StatusCancelled, true},
		{domain.StatusFailed, domain.StatusQueued, false},
		{domain.StatusCancelled, domain.StatusPending, false},
		{domain.StatusPending, domain.StatusBatched, true},
		{domain.StatusBatched, domain.StatusSent, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestChannelMask_Operations(t *testing.T) {
	a := domain.NewChannelMask(domain.ChannelInApp, domain.ChannelPush)
	b := domain.NewChannelMask(domain.ChannelPush, domain.ChannelEmail)

	inter := a.Intersect(b)
	if inter.Len() != 1 || !inter.Contains(domain.ChannelPush) {
		t.Fatalf("expected intersection to contain only push, got %v", inter.Slice())
	}

	union := a.Union(b)
	if union.Len() != 3 {
		t.Fatalf("expected union of 3 channels, got %d", union.Len())
	}

	if a.Contains(domain.ChannelEmail) {
		t.Fatalf("did not expect mask to contain email")
	}
}

func TestMaxPriority(t *testing.T) {
	if got := domain.MaxPriority(domain.PriorityLow, domain.PriorityUrgent); got != domain.PriorityUrgent {
		t.Fatalf("expected urgent, got %v", got)
	}
	if got := domain.MaxPriority(domain.PriorityHigh, domain.PriorityNormal); got != domain.PriorityHigh {
		t.Fatalf("expected high, got %v", got)
	}
}
