package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-engine/internal/domain"
)

type pgPreferencesRepository struct {
	pool *pgxpool.Pool
}

func NewPgPreferencesRepository(pool *pgxpool.Pool) PreferencesRepository {
	return &pgPreferencesRepository{pool: pool}
}

func (r *pgPreferencesRepository) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, email_address, default_mask, type_overrides, quiet_hours, blocked_senders, updated_at
		FROM preferences WHERE user_id = $1`, userID)

	var p domain.Preferences
	var defaultMask, typeOverrides, quietHours, blockedSenders []byte
	err := row.Scan(&p.UserID, &p.EmailAddress, &defaultMask, &typeOverrides, &quietHours, &blockedSenders, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	if err := p.DefaultMask.UnmarshalJSON(defaultMask); err != nil {
		return nil, fmt.Errorf("unmarshal default_mask: %w", err)
	}
	if err := unmarshalJSON(typeOverrides, &p.TypeOverrides); err != nil {
		return nil, fmt.Errorf("unmarshal type_overrides: %w", err)
	}
	if err := unmarshalJSON(quietHours, &p.QuietHours); err != nil {
		return nil, fmt.Errorf("unmarshal quiet_hours: %w", err)
	}
	var blocked []string
	if err := unmarshalJSON(blockedSenders, &blocked); err != nil {
		return nil, fmt.Errorf("unmarshal blocked_senders: %w", err)
	}
	p.BlockedSenders = make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		p.BlockedSenders[id] = struct{}{}
	}
	return &p, nil
}

func (r *pgPreferencesRepository) UpsertPreferences(ctx context.Context, p *domain.Preferences) error {
	defaultMask, err := p.DefaultMask.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal default_mask: %w", err)
	}
	typeOverrides, err := marshalJSON(p.TypeOverrides)
	if err != nil {
		return fmt.Errorf("marshal type_overrides: %w", err)
	}
	quietHours, err := marshalJSON(p.QuietHours)
	if err != nil {
		return fmt.Errorf("marshal quiet_hours: %w", err)
	}
	blocked := make([]string, 0, len(p.BlockedSenders))
	for id := range p.BlockedSenders {
		blocked = append(blocked, id)
	}
	blockedSenders, err := marshalJSON(blocked)
	if err != nil {
		return fmt.Errorf("marshal blocked_senders: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, email_address, default_mask, type_overrides, quiet_hours, blocked_senders, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			email_address = EXCLUDED.email_address,
			default_mask = EXCLUDED.default_mask,
			type_overrides = EXCLUDED.type_overrides,
			quiet_hours = EXCLUDED.quiet_hours,
			blocked_senders = EXCLUDED.blocked_senders,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.EmailAddress, defaultMask, typeOverrides, quietHours, blockedSenders, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
