package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"notification-engine/internal/repository"
)

// SweepSource discovers which tenants have due work. Satisfied by
// repository.PgxStoreFactory.
type SweepSource interface {
	TenantsWithDueNotifications(ctx context.Context, now time.Time) ([]string, error)
	TenantsWithDueBatches(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper is the scheduler-facing entry point pair: a frequent sweep over
// due pending notifications and a slower sweep over due digest batches.
// Both are safe to invoke concurrently and repeatedly; the status-driven
// claim pattern in the stores makes overlapping sweeps converge.
type Sweeper struct {
	stores     repository.StoreFactory
	source     SweepSource
	delivery   *DeliveryService
	aggregator *BatchAggregator
	logger     *zap.Logger
	limit      int
	now        func() time.Time
}

func NewSweeper(
	stores repository.StoreFactory,
	source SweepSource,
	delivery *DeliveryService,
	aggregator *BatchAggregator,
	logger *zap.Logger,
	limit int,
) *Sweeper {
	if limit <= 0 {
		limit = 200
	}
	return &Sweeper{
		stores:     stores,
		source:     source,
		delivery:   delivery,
		aggregator: aggregator,
		logger:     logger,
		limit:      limit,
		now:        time.Now,
	}
}

// RunDueSweep delivers pending notifications whose scheduled time has
// arrived, tenant by tenant. Per-tenant failures are logged and do not stop
// the sweep.
func (s *Sweeper) RunDueSweep(ctx context.Context) {
	now := s.now()
	tenants, err := s.source.TenantsWithDueNotifications(ctx, now)
	if err != nil {
		s.logger.Error("Failed to discover tenants with due notifications", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		store, err := s.stores.ForTenant(tenant)
		if err != nil {
			s.logger.Error("Failed to open tenant store", zap.String("tenant_id", tenant), zap.Error(err))
			continue
		}
		due, err := store.Notifications().FindDuePending(ctx, now, s.limit)
		if err != nil {
			s.logger.Error("Failed to find due notifications", zap.String("tenant_id", tenant), zap.Error(err))
			continue
		}
		if len(due) == 0 {
			continue
		}
		sent := s.delivery.DeliverGroup(ctx, due)
		s.logger.Info("Due sweep pass finished",
			zap.String("tenant_id", tenant),
			zap.Int("due", len(due)),
			zap.Int("sent", sent),
		)
	}
}

// RunDueBatchSweep flushes digest batches whose scheduled time has arrived.
func (s *Sweeper) RunDueBatchSweep(ctx context.Context) {
	now := s.now()
	tenants, err := s.source.TenantsWithDueBatches(ctx, now)
	if err != nil {
		s.logger.Error("Failed to discover tenants with due batches", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		store, err := s.stores.ForTenant(tenant)
		if err != nil {
			s.logger.Error("Failed to open tenant store", zap.String("tenant_id", tenant), zap.Error(err))
			continue
		}
		due, err := store.Batches().FindDue(ctx, now, s.limit)
		if err != nil {
			s.logger.Error("Failed to find due batches", zap.String("tenant_id", tenant), zap.Error(err))
			continue
		}
		for _, batch := range due {
			if err := s.aggregator.Flush(ctx, tenant, batch.ID); err != nil {
				s.logger.Error("Batch flush failed",
					zap.String("tenant_id", tenant),
					zap.String("batch_id", batch.ID),
					zap.Error(err),
				)
			}
		}
	}
}
