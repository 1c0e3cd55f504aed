package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
)

func TestEmailAdapter_NoAddressOnFileSkipsSilently(t *testing.T) {
	prefs := repository.NewMockPreferencesRepository()
	a := channel.NewEmailAdapter(config.EmailConfig{SMTPHost: "localhost", SMTPPort: 2525, SendTimeout: time.Second}, prefs)

	result, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err != nil {
		t.Fatalf("expected no error when recipient has no preferences on file, got %v", err)
	}
	if result.Attempted != 0 {
		t.Fatalf("expected zero attempted sends, got %+v", result)
	}
}

func TestEmailAdapter_EmptyAddressSkipsSilently(t *testing.T) {
	prefs := repository.NewMockPreferencesRepository()
	_ = prefs.UpsertPreferences(context.Background(), &domain.Preferences{UserID: "u1"})
	a := channel.NewEmailAdapter(config.EmailConfig{SMTPHost: "localhost", SMTPPort: 2525, SendTimeout: time.Second}, prefs)

	result, err := a.SendToUser(context.Background(), testNotification(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Attempted != 0 {
		t.Fatalf("expected zero attempted sends when no address set, got %+v", result)
	}
}
