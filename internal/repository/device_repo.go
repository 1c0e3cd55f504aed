package repository

import (
	"context"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// DeviceRepository persists push-token registrations, keyed by
// (user_id, device_id) per the repository contract.
type DeviceRepository interface {
	RegisterDevice(ctx context.Context, d *domain.DeviceRegistration) error
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
	ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error)
}
