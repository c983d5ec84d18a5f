package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notification-engine/internal/model"
)

type notificationRepo struct {
	db     *pgxpool.Pool
	tenant string
	logger *zap.Logger
}

const notificationColumns = `
	id, tenant_id, user_id, type_id, type_name, channel, title, body,
	metadata, status, priority, locale, event_key, event_version,
	idempotency_key, batch_id, scheduled_for, expires_at, sent_at, read_at,
	attempts, created_at, updated_at
`

func (r *notificationRepo) Insert(ctx context.Context, n *model.Notification) error {
	n.TenantID = r.tenant
	query := `
		INSERT INTO notifications (
			id, tenant_id, user_id, type_id, type_name, channel, title, body,
			metadata, status, priority, locale, event_key, event_version,
			idempotency_key, batch_id, scheduled_for, expires_at, attempts
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID, n.TenantID, n.UserID, n.TypeID, n.TypeName, n.Channel,
		n.Title, n.Body, n.Metadata, n.Status, n.Priority, n.Locale,
		n.EventKey, n.EventVersion, n.IdempotencyKey, n.BatchID,
		n.ScheduledFor, n.ExpiresAt, n.Attempts,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepo) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, id))
}

func (r *notificationRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = $1 AND idempotency_key = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, key))
}

func (r *notificationRepo) FindByEventKey(ctx context.Context, userID, typeID, eventKey string) (*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND type_id = $3 AND event_key = $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, userID, typeID, eventKey))
}

func (r *notificationRepo) Overwrite(ctx context.Context, id string, metadata map[string]any) error {
	query := `
		UPDATE notifications
		SET metadata = $3, event_version = event_version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, metadata)
	if err != nil {
		return fmt.Errorf("failed to overwrite notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepo) UpdateStatus(ctx context.Context, id string, status model.NotificationStatus) error {
	query := `UPDATE notifications SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, status)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $3, sent_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.Exec(ctx, query, r.tenant, id, model.StatusSent, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $3, read_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, model.StatusRead, at, model.StatusSent)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepo) AppendAttempt(ctx context.Context, id string, attempt model.DeliveryAttempt) error {
	query := `
		UPDATE notifications
		SET attempts = attempts || $3::jsonb, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.Exec(ctx, query, r.tenant, id, []model.DeliveryAttempt{attempt})
	if err != nil {
		return fmt.Errorf("failed to append delivery attempt: %w", err)
	}
	return nil
}

func (r *notificationRepo) FindByBatch(ctx context.Context, batchID string) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, r.tenant, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch notifications: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *notificationRepo) SetStatusForBatch(ctx context.Context, batchID string, from, to model.NotificationStatus) error {
	query := `
		UPDATE notifications
		SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND batch_id = $2 AND status = $3
	`
	_, err := r.db.Exec(ctx, query, r.tenant, batchID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update batch notification statuses: %w", err)
	}
	return nil
}

func (r *notificationRepo) FindDuePending(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1
		  AND status = $2
		  AND (scheduled_for IS NULL OR scheduled_for <= $3)
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, r.tenant, model.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *notificationRepo) scanOne(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID, &n.TenantID, &n.UserID, &n.TypeID, &n.TypeName, &n.Channel,
		&n.Title, &n.Body, &n.Metadata, &n.Status, &n.Priority, &n.Locale,
		&n.EventKey, &n.EventVersion, &n.IdempotencyKey, &n.BatchID,
		&n.ScheduledFor, &n.ExpiresAt, &n.SentAt, &n.ReadAt,
		&n.Attempts, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepo) scanAll(rows pgx.Rows) ([]*model.Notification, error) {
	var out []*model.Notification
	for rows.Next() {
		n, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
