package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-engine/internal/model"
)

type notificationTypeRepo struct {
	db     *pgxpool.Pool
	tenant string
}

const typeColumns = `
	id, tenant_id, name, category, default_channels, default_frequency,
	default_batch_interval, required_permission, auto_subscribe,
	subscription_conditions, requires_action, default_expires_after_hours,
	default_priority, templates, dedup_policy, is_active, created_at, updated_at
`

func (r *notificationTypeRepo) Insert(ctx context.Context, t *model.NotificationType) error {
	t.TenantID = r.tenant
	query := `
		INSERT INTO notification_types (
			id, tenant_id, name, category, default_channels, default_frequency,
			default_batch_interval, required_permission, auto_subscribe,
			subscription_conditions, requires_action, default_expires_after_hours,
			default_priority, templates, dedup_policy, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.ID, t.TenantID, t.Name, t.Category, t.DefaultChannels,
		t.DefaultFrequency, t.DefaultBatchInterval, t.RequiredPermission,
		t.AutoSubscribe, t.SubscriptionConditions, t.RequiresAction,
		t.DefaultExpiresAfterHour, t.DefaultPriority, t.Templates,
		t.DedupPolicy, t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification type: %w", err)
	}
	return nil
}

func (r *notificationTypeRepo) Update(ctx context.Context, t *model.NotificationType) error {
	query := `
		UPDATE notification_types
		SET category = $3, default_channels = $4, default_frequency = $5,
		    default_batch_interval = $6, required_permission = $7,
		    auto_subscribe = $8, subscription_conditions = $9,
		    requires_action = $10, default_expires_after_hours = $11,
		    default_priority = $12, templates = $13, dedup_policy = $14,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query,
		r.tenant, t.ID, t.Category, t.DefaultChannels, t.DefaultFrequency,
		t.DefaultBatchInterval, t.RequiredPermission, t.AutoSubscribe,
		t.SubscriptionConditions, t.RequiresAction, t.DefaultExpiresAfterHour,
		t.DefaultPriority, t.Templates, t.DedupPolicy,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationTypeRepo) GetByID(ctx context.Context, id string) (*model.NotificationType, error) {
	query := `SELECT ` + typeColumns + ` FROM notification_types WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, id))
}

func (r *notificationTypeRepo) GetByName(ctx context.Context, name string) (*model.NotificationType, error) {
	query := `SELECT ` + typeColumns + ` FROM notification_types WHERE tenant_id = $1 AND name = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, name))
}

func (r *notificationTypeRepo) List(ctx context.Context) ([]*model.NotificationType, error) {
	query := `SELECT ` + typeColumns + ` FROM notification_types WHERE tenant_id = $1 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, r.tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification types: %w", err)
	}
	defer rows.Close()

	var out []*model.NotificationType
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *notificationTypeRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE notification_types SET is_active = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	tag, err := r.db.Exec(ctx, query, r.tenant, id, active)
	if err != nil {
		return fmt.Errorf("failed to set notification type active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationTypeRepo) scanOne(row pgx.Row) (*model.NotificationType, error) {
	var t model.NotificationType
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Category, &t.DefaultChannels,
		&t.DefaultFrequency, &t.DefaultBatchInterval, &t.RequiredPermission,
		&t.AutoSubscribe, &t.SubscriptionConditions, &t.RequiresAction,
		&t.DefaultExpiresAfterHour, &t.DefaultPriority, &t.Templates,
		&t.DedupPolicy, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan notification type: %w", err)
	}
	return &t, nil
}
