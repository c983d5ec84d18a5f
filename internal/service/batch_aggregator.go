package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-engine/contracts/mq"
	"notification-engine/internal/model"
	"notification-engine/internal/repository"
	"notification-engine/pkg/metrics"
)

// BatchAggregator flushes due digest batches: it claims a batch, folds its
// constituent notifications into one aggregated digest, and routes the
// digest through the delivery service like an ordinary send.
type BatchAggregator struct {
	stores   repository.StoreFactory
	delivery *DeliveryService
	outbox   OutboxWriter
	logger   *zap.Logger
	now      func() time.Time
}

func NewBatchAggregator(stores repository.StoreFactory, delivery *DeliveryService, outbox OutboxWriter, logger *zap.Logger) *BatchAggregator {
	return &BatchAggregator{stores: stores, delivery: delivery, outbox: outbox, logger: logger, now: time.Now}
}

// Flush processes one due batch. Losing the processing claim to a concurrent
// flusher is a no-op, not an error. On delivery failure the batch returns to
// pending so the next batch sweep retries it; at the attempt ceiling it is
// terminally failed together with its constituents.
func (a *BatchAggregator) Flush(ctx context.Context, tenantID, batchID string) error {
	store, err := a.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}

	claimed, err := store.Batches().ClaimProcessing(ctx, batchID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	batch, err := store.Batches().GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	notifications, err := store.Notifications().FindByBatch(ctx, batchID)
	if err != nil {
		return a.fail(ctx, store, batch, err)
	}

	now := a.now()
	constituents := make([]*model.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.Status != model.StatusBatched {
			continue
		}
		if n.Expired(now) {
			if err := store.Notifications().UpdateStatus(ctx, n.ID, model.StatusExpired); err != nil {
				return a.fail(ctx, store, batch, err)
			}
			continue
		}
		constituents = append(constituents, n)
	}

	if len(constituents) == 0 {
		a.logger.Info("Batch flushed empty", zap.String("batch_id", batchID))
		return store.Batches().UpdateStatus(ctx, batchID, model.BatchCancelled)
	}

	content := aggregate(constituents)
	if err := store.Batches().SetAggregatedContent(ctx, batchID, content); err != nil {
		return a.fail(ctx, store, batch, err)
	}

	digest := a.synthesizeDigest(batch, content, constituents, now)
	if err := a.delivery.DeliverDigest(ctx, batch, digest); err != nil {
		a.logger.Warn("Digest delivery failed",
			zap.String("batch_id", batchID),
			zap.String("channel", batch.Channel),
			zap.Error(err),
		)
		return a.fail(ctx, store, batch, err)
	}

	if err := store.Batches().MarkSent(ctx, batchID, now); err != nil {
		return err
	}
	if err := store.Notifications().SetStatusForBatch(ctx, batchID, model.StatusBatched, model.StatusSent); err != nil {
		return err
	}
	metrics.BatchesFlushed.WithLabelValues("sent").Inc()

	if err := a.outbox.Insert(ctx, "notification_batch", batchID, mq.RoutingBatchSent, mq.BatchSentPayload{
		BatchID:  batchID,
		TenantID: batch.TenantID,
		UserID:   batch.UserID,
		Channel:  batch.Channel,
		Count:    content.Count,
		SentAt:   now,
	}); err != nil {
		a.logger.Error("Failed to record batch sent event", zap.String("batch_id", batchID), zap.Error(err))
	}
	return nil
}

// fail records a flush failure. Under the attempt ceiling the batch goes back
// to pending, keeping it and its batched constituents visible to the next
// sweep. At the ceiling the batch and its constituents turn terminally failed
// so nothing lingers in a non-terminal status forever.
func (a *BatchAggregator) fail(ctx context.Context, store repository.Store, batch *model.NotificationBatch, cause error) error {
	fresh, err := store.Batches().GetByID(ctx, batch.ID)
	if err != nil {
		fresh = batch
	}

	if fresh.FailedAttempts() < MaxDeliveryAttempts {
		if err := store.Batches().UpdateStatus(ctx, batch.ID, model.BatchPending); err != nil {
			a.logger.Error("Failed to requeue batch", zap.String("batch_id", batch.ID), zap.Error(err))
		}
		metrics.BatchesFlushed.WithLabelValues("retryable").Inc()
		return cause
	}

	if err := store.Batches().UpdateStatus(ctx, batch.ID, model.BatchFailed); err != nil {
		a.logger.Error("Failed to mark batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	if err := store.Notifications().SetStatusForBatch(ctx, batch.ID, model.StatusBatched, model.StatusFailed); err != nil {
		a.logger.Error("Failed to fail batch constituents", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	metrics.BatchesFlushed.WithLabelValues("failed").Inc()
	return cause
}

// synthesizeDigest builds the one ad-hoc notification the digest travels
// as. It is never persisted; attempts are recorded on the batch instead.
func (a *BatchAggregator) synthesizeDigest(batch *model.NotificationBatch, content *model.AggregatedContent, constituents []*model.Notification, now time.Time) *model.Notification {
	body := ""
	for _, item := range content.Items {
		line := item.Title
		if item.Summary != "" {
			line = line + ": " + item.Summary
		}
		body += "- " + line + "\n"
	}

	return &model.Notification{
		ID:        uuid.NewString(),
		TenantID:  batch.TenantID,
		UserID:    batch.UserID,
		TypeID:    batch.TypeID,
		TypeName:  constituents[0].TypeName,
		Channel:   batch.Channel,
		Title:     content.Title,
		Body:      body,
		Status:    model.StatusPending,
		Priority:  model.PriorityNormal,
		Locale:    constituents[0].Locale,
		BatchID:   batch.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// aggregate folds the constituents into the digest payload.
func aggregate(constituents []*model.Notification) *model.AggregatedContent {
	items := make([]model.AggregatedItem, 0, len(constituents))
	for _, n := range constituents {
		title := n.Title
		if title == "" {
			title = n.TypeName
		}
		items = append(items, model.AggregatedItem{
			NotificationID: n.ID,
			Title:          title,
			Summary:        n.Body,
			Metadata:       n.Metadata,
		})
	}
	return &model.AggregatedContent{
		Title: fmt.Sprintf("You have %d new notifications", len(items)),
		Count: len(items),
		Items: items,
	}
}
