package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-engine/internal/model"
)

type actionRepo struct {
	db     *pgxpool.Pool
	tenant string
}

// Insert records one action execution. The partial unique index on
// (tenant_id, notification_id, action_type) WHERE status = 'completed'
// is the at-most-once guard under concurrent invocations.
func (r *actionRepo) Insert(ctx context.Context, a *model.NotificationAction) error {
	a.TenantID = r.tenant
	query := `
		INSERT INTO notification_actions (
			id, tenant_id, notification_id, user_id, action_type, status,
			action_data, result, error, batch_action_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING executed_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.TenantID, a.NotificationID, a.UserID, a.ActionType,
		a.Status, a.ActionData, a.Result, a.Error, a.BatchActionID,
	).Scan(&a.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (r *actionRepo) HasCompleted(ctx context.Context, notificationID, actionType string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_actions
			WHERE tenant_id = $1 AND notification_id = $2 AND action_type = $3 AND status = $4
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, r.tenant, notificationID, actionType, model.ActionCompleted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completed action: %w", err)
	}
	return exists, nil
}

func (r *actionRepo) ListForNotification(ctx context.Context, notificationID string) ([]*model.NotificationAction, error) {
	query := `
		SELECT id, tenant_id, notification_id, user_id, action_type, status,
		       action_data, result, error, batch_action_id, executed_at
		FROM notification_actions
		WHERE tenant_id = $1 AND notification_id = $2
		ORDER BY executed_at ASC
	`
	rows, err := r.db.Query(ctx, query, r.tenant, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var out []*model.NotificationAction
	for rows.Next() {
		var a model.NotificationAction
		err := rows.Scan(
			&a.ID, &a.TenantID, &a.NotificationID, &a.UserID, &a.ActionType,
			&a.Status, &a.ActionData, &a.Result, &a.Error, &a.BatchActionID,
			&a.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *actionRepo) InsertBatchAction(ctx context.Context, b *model.NotificationBatchAction) error {
	b.TenantID = r.tenant
	query := `
		INSERT INTO notification_batch_actions (
			id, tenant_id, user_id, action_type, status, notification_ids,
			succeeded_count, failed_count
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING executed_at
	`
	err := r.db.QueryRow(ctx, query,
		b.ID, b.TenantID, b.UserID, b.ActionType, b.Status,
		b.NotificationIDs, b.SucceededCount, b.FailedCount,
	).Scan(&b.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert batch action: %w", err)
	}
	return nil
}

func (r *actionRepo) UpdateBatchAction(ctx context.Context, b *model.NotificationBatchAction) error {
	query := `
		UPDATE notification_batch_actions
		SET status = $3, succeeded_count = $4, failed_count = $5
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query, r.tenant, b.ID, b.Status, b.SucceededCount, b.FailedCount)
	if err != nil {
		return fmt.Errorf("failed to update batch action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type channelAddressRepo struct {
	db     *pgxpool.Pool
	tenant string
}

func (r *channelAddressRepo) Get(ctx context.Context, userID, channelName string) (*model.ChannelAddress, error) {
	query := `
		SELECT id, tenant_id, user_id, channel, address, verified,
		       bounce_count, complaint_count, disabled, created_at, updated_at
		FROM channel_addresses
		WHERE tenant_id = $1 AND user_id = $2 AND channel = $3
	`
	var a model.ChannelAddress
	err := r.db.QueryRow(ctx, query, r.tenant, userID, channelName).Scan(
		&a.ID, &a.TenantID, &a.UserID, &a.Channel, &a.Address, &a.Verified,
		&a.BounceCount, &a.ComplaintCount, &a.Disabled, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan channel address: %w", err)
	}
	return &a, nil
}

func (r *channelAddressRepo) Upsert(ctx context.Context, a *model.ChannelAddress) error {
	a.TenantID = r.tenant
	query := `
		INSERT INTO channel_addresses (
			id, tenant_id, user_id, channel, address, verified, disabled
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tenant_id, user_id, channel) DO UPDATE
		SET address = EXCLUDED.address,
		    verified = EXCLUDED.verified,
		    disabled = EXCLUDED.disabled,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.TenantID, a.UserID, a.Channel, a.Address, a.Verified, a.Disabled,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert channel address: %w", err)
	}
	return nil
}

// RecordBounce increments the bounce counter and trips the disabled flag
// once the counter reaches disableAt.
func (r *channelAddressRepo) RecordBounce(ctx context.Context, userID, channelName string, disableAt int) error {
	query := `
		UPDATE channel_addresses
		SET bounce_count = bounce_count + 1,
		    disabled = (bounce_count + 1 >= $4),
		    updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND channel = $3
	`
	_, err := r.db.Exec(ctx, query, r.tenant, userID, channelName, disableAt)
	if err != nil {
		return fmt.Errorf("failed to record bounce: %w", err)
	}
	return nil
}
