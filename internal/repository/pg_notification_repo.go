package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-engine/internal/domain"
)

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	channelMask, err := n.ChannelMask.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal channel_mask: %w", err)
	}
	templateVars, err := marshalMap(n.TemplateVars)
	if err != nil {
		return fmt.Errorf("marshal template_vars: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, recipient_id, sender_id, type, title, body, action_link,
			 comment_id, content_item_id, conversation_id,
			 channel_mask, priority, status,
			 created_at, scheduled_at, expires_at,
			 group_key, batch_id, template_vars, allow_bundling, respect_quiet_hours,
			 idempotency_key, attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Body, n.ActionLink,
		n.ContentRefs.CommentID, n.ContentRefs.ContentItemID, n.ContentRefs.ConversationID,
		channelMask, n.Priority, n.Status,
		n.CreatedAt, n.ScheduledAt, n.ExpiresAt,
		n.GroupKey, n.BatchID, templateVars, n.AllowBundling, n.RespectQuietHours,
		n.IdempotencyKey, n.Attempts,
	)
	if err != nil {
		if strings.Contains(err.Error(), "idempotency_key") {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const notificationColumns = `
	id, recipient_id, sender_id, type, title, body, action_link,
	comment_id, content_item_id, conversation_id,
	channel_mask, priority, status,
	created_at, scheduled_at, expires_at,
	delivered_at, read_at, attempts, failure_reason, next_retry_at,
	group_key, batch_id, template_vars, allow_bundling, respect_quiet_hours,
	idempotency_key`

func (r *pgNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	where, args := buildListWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	args = append(args, limit, offset)
	limitPlaceholder := fmt.Sprintf("$%d", len(args)-1)
	offsetPlaceholder := fmt.Sprintf("$%d", len(args))

	query := fmt.Sprintf(`SELECT %s FROM notifications%s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		notificationColumns, where, limitPlaceholder, offsetPlaceholder)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	return notifications, total, err
}

// UpdateStatus is a compare-and-set write: the WHERE clause guards against
// a concurrent worker having already moved the row past expected, per the
// repository contract's CAS requirement.
func (r *pgNotificationRepository) UpdateStatus(ctx context.Context, id string, expected, next domain.Status, at time.Time) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	switch next {
	case domain.StatusDelivered:
		tag, err = r.pool.Exec(ctx,
			`UPDATE notifications SET status = $1, delivered_at = $2 WHERE id = $3 AND status = $4`,
			next, at, id, expected)
	case domain.StatusRead:
		tag, err = r.pool.Exec(ctx,
			`UPDATE notifications SET status = $1, read_at = $2 WHERE id = $3 AND status = $4`,
			next, at, id, expected)
	default:
		tag, err = r.pool.Exec(ctx,
			`UPDATE notifications SET status = $1 WHERE id = $2 AND status = $3`,
			next, id, expected)
	}
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgNotificationRepository) MarkFailed(ctx context.Context, id string, reason string, attempts int, nextRetryAt *time.Time) error {
	status := domain.StatusFailed
	if nextRetryAt != nil {
		status = domain.StatusProcessing // retry pending: stays live, not terminal
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1, failure_reason = $2, attempts = $3, next_retry_at = $4
		WHERE id = $5`, status, reason, attempts, nextRetryAt, id)
	return err
}

func (r *pgNotificationRepository) MarkBatched(ctx context.Context, id string, batchID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1, batch_id = $2 WHERE id = $3`,
		domain.StatusBatched, batchID, id)
	if err != nil {
		return fmt.Errorf("mark batched: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) Cancel(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1 WHERE id = $2`, domain.StatusCancelled, id)
	return err
}

func (r *pgNotificationRepository) ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3`, domain.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled due: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *pgNotificationRepository) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3`, domain.StatusProcessing, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending retries: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ---- batches ----

func (r *pgNotificationRepository) CreateBatch(ctx context.Context, b *domain.Batch) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO batches
			(id, recipient_id, type, group_key, window_start, window_end,
			 member_ids, priority, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.RecipientID, b.Type, b.GroupKey, b.WindowStart, b.WindowEnd,
		b.MemberIDs, b.Priority, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

const batchColumns = `id, recipient_id, type, group_key, window_start, window_end,
	member_ids, priority, status, flushed_at, digest_notification_id, created_at, updated_at`

func (r *pgNotificationRepository) GetOpenBatch(ctx context.Context, recipientID string, t domain.NotificationType, groupKey string) (*domain.Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+`
		FROM batches
		WHERE recipient_id = $1 AND type = $2 AND group_key = $3 AND status = $4`,
		recipientID, t, groupKey, domain.BatchOpen)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (r *pgNotificationRepository) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE batches
		SET member_ids = $1, priority = $2, status = $3, flushed_at = $4,
		    digest_notification_id = $5, updated_at = $6
		WHERE id = $7`,
		b.MemberIDs, b.Priority, b.Status, b.FlushedAt, b.DigestNotifID, b.UpdatedAt, b.ID,
	)
	return err
}

func (r *pgNotificationRepository) ListExpiredOpenBatches(ctx context.Context, now time.Time, limit int) ([]*domain.Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
		FROM batches
		WHERE status = $1 AND window_end <= $2
		LIMIT $3`, domain.BatchOpen, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired open batches: %w", err)
	}
	defer rows.Close()

	var result []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *pgNotificationRepository) ListOpenBatchesByRecipient(ctx context.Context, recipientID string) ([]*domain.Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
		FROM batches
		WHERE recipient_id = $1 AND status = $2`, recipientID, domain.BatchOpen)
	if err != nil {
		return nil, fmt.Errorf("list open batches by recipient: %w", err)
	}
	defer rows.Close()

	var result []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ---- scan helpers ----

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var channelMask []byte
	var templateVars []byte
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Body, &n.ActionLink,
		&n.ContentRefs.CommentID, &n.ContentRefs.ContentItemID, &n.ContentRefs.ConversationID,
		&channelMask, &n.Priority, &n.Status,
		&n.CreatedAt, &n.ScheduledAt, &n.ExpiresAt,
		&n.DeliveredAt, &n.ReadAt, &n.Attempts, &n.FailureReason, &n.NextRetryAt,
		&n.GroupKey, &n.BatchID, &templateVars, &n.AllowBundling, &n.RespectQuietHours,
		&n.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	if err := n.ChannelMask.UnmarshalJSON(channelMask); err != nil {
		return nil, fmt.Errorf("unmarshal channel_mask: %w", err)
	}
	if n.TemplateVars, err = unmarshalMap(templateVars); err != nil {
		return nil, fmt.Errorf("unmarshal template_vars: %w", err)
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(
		&b.ID, &b.RecipientID, &b.Type, &b.GroupKey, &b.WindowStart, &b.WindowEnd,
		&b.MemberIDs, &b.Priority, &b.Status, &b.FlushedAt, &b.DigestNotifID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// buildListWhere builds a parameterised WHERE clause from a ListFilter.
func buildListWhere(f domain.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.RecipientID != nil {
		add("recipient_id = $%d", *f.RecipientID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Type != nil {
		add("type = $%d", *f.Type)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
