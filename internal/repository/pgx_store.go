package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgxStoreFactory builds pgx-backed stores. The pool is shared; the tenant
// scope lives on each store.
type PgxStoreFactory struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPgxStoreFactory(db *pgxpool.Pool, logger *zap.Logger) *PgxStoreFactory {
	return &PgxStoreFactory{db: db, logger: logger}
}

func (f *PgxStoreFactory) ForTenant(tenant string) (Store, error) {
	if tenant == "" {
		return nil, fmt.Errorf("store requires a tenant")
	}
	return &pgxStore{db: f.db, tenant: tenant, logger: f.logger}, nil
}

// TenantsWithDueNotifications lists tenants holding pending notifications
// whose scheduled time has arrived. Sweeps discover tenants here and then
// work through tenant-scoped stores.
func (f *PgxStoreFactory) TenantsWithDueNotifications(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM notifications
		WHERE status = 'pending'
		AND (scheduled_for IS NULL OR scheduled_for <= $1)
	`
	return f.scanTenants(ctx, query, now)
}

// TenantsWithDueBatches lists tenants holding pending batches past their
// scheduled time.
func (f *PgxStoreFactory) TenantsWithDueBatches(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM notification_batches
		WHERE status = 'pending'
		AND scheduled_for <= $1
	`
	return f.scanTenants(ctx, query, now)
}

func (f *PgxStoreFactory) scanTenants(ctx context.Context, query string, now time.Time) ([]string, error) {
	rows, err := f.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

type pgxStore struct {
	db     *pgxpool.Pool
	tenant string
	logger *zap.Logger
}

func (s *pgxStore) Tenant() string { return s.tenant }

func (s *pgxStore) Notifications() NotificationRepository {
	return &notificationRepo{db: s.db, tenant: s.tenant, logger: s.logger}
}

func (s *pgxStore) Types() NotificationTypeRepository {
	return &notificationTypeRepo{db: s.db, tenant: s.tenant}
}

func (s *pgxStore) Preferences() PreferenceRepository {
	return &preferenceRepo{db: s.db, tenant: s.tenant}
}

func (s *pgxStore) Batches() BatchRepository {
	return &batchRepo{db: s.db, tenant: s.tenant}
}

func (s *pgxStore) Actions() ActionRepository {
	return &actionRepo{db: s.db, tenant: s.tenant}
}

func (s *pgxStore) Addresses() ChannelAddressRepository {
	return &channelAddressRepo{db: s.db, tenant: s.tenant}
}
