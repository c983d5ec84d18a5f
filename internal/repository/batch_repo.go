package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-engine/internal/model"
)

type batchRepo struct {
	db     *pgxpool.Pool
	tenant string
}

const batchColumns = `
	id, tenant_id, user_id, type_id, channel, batch_interval, status,
	scheduled_for, sent_at, aggregated_content, attempts, created_at, updated_at
`

func (r *batchRepo) Insert(ctx context.Context, b *model.NotificationBatch) error {
	b.TenantID = r.tenant
	query := `
		INSERT INTO notification_batches (
			id, tenant_id, user_id, type_id, channel, batch_interval,
			status, scheduled_for, attempts
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.ID, b.TenantID, b.UserID, b.TypeID, b.Channel, b.Interval,
		b.Status, b.ScheduledFor, b.Attempts,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, id string) (*model.NotificationBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM notification_batches WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, id))
}

// FindOpen relies on the partial unique index on
// (tenant_id, user_id, type_id, channel) WHERE status = 'pending': at most
// one open batch exists per key at a time.
func (r *batchRepo) FindOpen(ctx context.Context, userID, typeID, channelName string, notBefore time.Time) (*model.NotificationBatch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM notification_batches
		WHERE tenant_id = $1 AND user_id = $2 AND type_id = $3 AND channel = $4
		  AND status = $5 AND scheduled_for >= $6
		ORDER BY scheduled_for ASC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, userID, typeID, channelName, model.BatchPending, notBefore))
}

func (r *batchRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationBatch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM notification_batches
		WHERE tenant_id = $1 AND status = $2 AND scheduled_for <= $3
		ORDER BY scheduled_for ASC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, r.tenant, model.BatchPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due batches: %w", err)
	}
	defer rows.Close()

	var out []*model.NotificationBatch
	for rows.Next() {
		b, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *batchRepo) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE notification_batches
		SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, model.BatchProcessing, model.BatchPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim batch: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *batchRepo) UpdateStatus(ctx context.Context, id string, status model.BatchStatus) error {
	query := `UPDATE notification_batches SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, status)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *batchRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notification_batches
		SET status = $3, sent_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.Exec(ctx, query, r.tenant, id, model.BatchSent, at)
	if err != nil {
		return fmt.Errorf("failed to mark batch sent: %w", err)
	}
	return nil
}

func (r *batchRepo) SetAggregatedContent(ctx context.Context, id string, content *model.AggregatedContent) error {
	query := `UPDATE notification_batches SET aggregated_content = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.Exec(ctx, query, r.tenant, id, content)
	if err != nil {
		return fmt.Errorf("failed to set aggregated content: %w", err)
	}
	return nil
}

func (r *batchRepo) AppendAttempt(ctx context.Context, id string, attempt model.DeliveryAttempt) error {
	query := `
		UPDATE notification_batches
		SET attempts = attempts || $3::jsonb, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.Exec(ctx, query, r.tenant, id, []model.DeliveryAttempt{attempt})
	if err != nil {
		return fmt.Errorf("failed to append batch attempt: %w", err)
	}
	return nil
}

func (r *batchRepo) scanOne(row pgx.Row) (*model.NotificationBatch, error) {
	var b model.NotificationBatch
	err := row.Scan(
		&b.ID, &b.TenantID, &b.UserID, &b.TypeID, &b.Channel, &b.Interval,
		&b.Status, &b.ScheduledFor, &b.SentAt, &b.AggregatedContent,
		&b.Attempts, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	return &b, nil
}
