package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-engine/internal/domain"
)

type pgDeviceRepository struct {
	pool *pgxpool.Pool
}

func NewPgDeviceRepository(pool *pgxpool.Pool) DeviceRepository {
	return &pgDeviceRepository{pool: pool}
}

func (r *pgDeviceRepository) RegisterDevice(ctx context.Context, d *domain.DeviceRegistration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (id, user_id, platform, token, active, registered_at, last_seen_at, token_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id, id) DO UPDATE SET
			token = EXCLUDED.token, active = true, last_seen_at = EXCLUDED.last_seen_at,
			token_updated_at = EXCLUDED.token_updated_at, invalidated_at = NULL`,
		d.ID, d.UserID, d.Platform, d.Token, d.Active, d.RegisteredAt, d.LastSeenAt, d.TokenUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (r *pgDeviceRepository) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET active = false, invalidated_at = now()
		WHERE user_id = $1 AND id = $2`, userID, deviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

func (r *pgDeviceRepository) ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, platform, token, active, registered_at, last_seen_at, token_updated_at, invalidated_at
		FROM devices WHERE user_id = $1 AND active = true`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user devices: %w", err)
	}
	defer rows.Close()

	var result []*domain.DeviceRegistration
	for rows.Next() {
		var d domain.DeviceRegistration
		if err := rows.Scan(&d.ID, &d.UserID, &d.Platform, &d.Token, &d.Active,
			&d.RegisteredAt, &d.LastSeenAt, &d.TokenUpdatedAt, &d.InvalidatedAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}
