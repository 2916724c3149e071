package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed implementation.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Insert(ctx context.Context, n *domain.Notification) (bool, error) {
	const query = `
        INSERT INTO notifications (id, recipient_id, request_id, event, message, is_read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		n.RequestID,
		n.Event,
		n.Message,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	const query = `
        SELECT id, recipient_id, request_id, event, message, is_read, created_at
        FROM notifications WHERE id=$1`
	var n domain.Notification
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.RecipientID,
		&n.RequestID,
		&n.Event,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	const query = `
        SELECT id, recipient_id, request_id, event, message, is_read, created_at
        FROM notifications WHERE recipient_id=$1
        ORDER BY created_at DESC, seq DESC`
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.RequestID,
			&n.Event,
			&n.Message,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT is_read`, recipientID).Scan(&count)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE WHERE recipient_id=$1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, recipientID string) (int, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id=$1`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}
