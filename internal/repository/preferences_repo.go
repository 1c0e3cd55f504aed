package repository

import (
	"context"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// PreferencesRepository persists per-user notification preferences,
// keyed by user_id per the repository contract.
type PreferencesRepository interface {
	GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error)
	UpsertPreferences(ctx context.Context, p *domain.Preferences) error
}
