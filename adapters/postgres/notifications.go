package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/layer-3/kusaidia/core"
)

const foreignKeyViolation = "23503"

// NotificationRepository implements ports.NotificationStore using PostgreSQL.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a PostgreSQL-backed notification store.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts n; redelivery of the same id is ignored.
func (r *NotificationRepository) Create(ctx context.Context, n *core.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, account_id, type, message, action_url, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.AccountID, n.Type, n.Message, n.ActionURL, n.Read, n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return core.ErrAccountNotFound
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a page of the account's notifications, newest first, and the total count.
func (r *NotificationRepository) List(ctx context.Context, accountID string, offset, limit int) ([]core.Notification, int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, type, message, action_url, is_read, created_at,
		       count(*) OVER() AS total_count
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	total := 0
	items := make([]core.Notification, 0)
	for rows.Next() {
		var n core.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Type, &n.Message, &n.ActionURL, &n.Read, &n.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan notification row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notification rows: %w", err)
	}

	// A page past the end carries no window count
	if len(items) == 0 && offset > 0 {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE account_id = $1`, accountID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count notifications: %w", err)
		}
	}

	return items, total, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE account_id = $1 AND NOT is_read`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips is_read; marking an already read notification succeeds.
func (r *NotificationRepository) MarkRead(ctx context.Context, accountID, id string) error {
	ct, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, accountID string) (int, error) {
	ct, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE account_id = $1 AND NOT is_read`, accountID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
