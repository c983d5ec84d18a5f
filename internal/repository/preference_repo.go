package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notification-engine/internal/model"
)

type preferenceRepo struct {
	db     *pgxpool.Pool
	tenant string
}

const preferenceColumns = `
	id, tenant_id, user_id, type_id, enabled, channels, frequency,
	batch_interval, quiet_hours, timezone, source, created_at, updated_at
`

func (r *preferenceRepo) Get(ctx context.Context, userID, typeID string) (*model.UserNotificationPreference, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM user_notification_preferences
		WHERE tenant_id = $1 AND user_id = $2 AND type_id = $3
	`
	return r.scanOne(r.db.QueryRow(ctx, query, r.tenant, userID, typeID))
}

// Upsert materializes or replaces the (user, type) row; the pair is unique.
func (r *preferenceRepo) Upsert(ctx context.Context, p *model.UserNotificationPreference) error {
	p.TenantID = r.tenant
	query := `
		INSERT INTO user_notification_preferences (
			id, tenant_id, user_id, type_id, enabled, channels, frequency,
			batch_interval, quiet_hours, timezone, source
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (tenant_id, user_id, type_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    channels = EXCLUDED.channels,
		    frequency = EXCLUDED.frequency,
		    batch_interval = EXCLUDED.batch_interval,
		    quiet_hours = EXCLUDED.quiet_hours,
		    timezone = EXCLUDED.timezone,
		    source = EXCLUDED.source,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.TenantID, p.UserID, p.TypeID, p.Enabled, p.Channels,
		p.Frequency, p.BatchInterval, p.QuietHours, p.Timezone, p.Source,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}

func (r *preferenceRepo) ListForUser(ctx context.Context, userID string) ([]*model.UserNotificationPreference, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM user_notification_preferences
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, r.tenant, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var out []*model.UserNotificationPreference
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *preferenceRepo) scanOne(row pgx.Row) (*model.UserNotificationPreference, error) {
	var p model.UserNotificationPreference
	err := row.Scan(
		&p.ID, &p.TenantID, &p.UserID, &p.TypeID, &p.Enabled, &p.Channels,
		&p.Frequency, &p.BatchInterval, &p.QuietHours, &p.Timezone,
		&p.Source, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan preference: %w", err)
	}
	return &p, nil
}
