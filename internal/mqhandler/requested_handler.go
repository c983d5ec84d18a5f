// Package mqhandler binds broker messages to engine entry points.
package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notification-engine/contracts/mq"
	"notification-engine/internal/model"
	"notification-engine/internal/service"
	"notification-engine/pkg/metrics"
	"notification-engine/pkg/util"
)

const requestedQueue = "notification.requested.worker"

// DeadLetterer parks a poison message with its original error. Satisfied by
// mq.Publisher.
type DeadLetterer interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// RequestedHandler consumes notification.requested events and fans them out.
// Delivery is at-least-once: a Redis dedup guard suppresses broker redelivery
// and the fan-out's idempotency keys make any replay that slips through
// converge on the same rows.
type RequestedHandler struct {
	fanout  *service.FanoutService
	deduper *util.Deduper
	dlq     DeadLetterer
	logger  *zap.Logger
}

func NewRequestedHandler(fanout *service.FanoutService, deduper *util.Deduper, dlq DeadLetterer, logger *zap.Logger) *RequestedHandler {
	return &RequestedHandler{fanout: fanout, deduper: deduper, dlq: dlq, logger: logger}
}

// Handle is the consumer callback. Returning an error nacks and requeues.
func (h *RequestedHandler) Handle(ctx context.Context, data json.RawMessage) error {
	started := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency(mq.RoutingNotificationRequested, requestedQueue, time.Since(started))
	}()

	var payload mq.NotificationRequestedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed messages are parked, not requeued; a requeue loops forever.
		h.deadLetter(data, err.Error())
		return nil
	}
	if payload.TenantID == "" || payload.TypeName == "" {
		h.deadLetter(data, "missing tenant or type")
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "notification.requested", messageKey(payload, data)) {
		h.logger.Info("Duplicate requested event suppressed",
			zap.String("tenant_id", payload.TenantID),
			zap.String("type_name", payload.TypeName),
		)
		return nil
	}

	result, err := h.fanout.Send(ctx, service.SendRequest{
		TenantID:       payload.TenantID,
		TypeName:       payload.TypeName,
		Data:           payload.Data,
		UserIDs:        payload.UserIDs,
		IdempotencyKey: payload.IdempotencyKey,
		EventKey:       payload.EventKey,
		Priority:       model.Priority(payload.Priority),
		ExpiresAt:      payload.ExpiresAt,
		Locale:         payload.Locale,
	})
	if err != nil {
		retryable, errType := util.IsRetryableError(err)
		if !retryable {
			h.logger.Error("Parking requested event after non-retryable failure",
				zap.String("tenant_id", payload.TenantID),
				zap.String("type_name", payload.TypeName),
				zap.String("error_type", errType),
				zap.Error(err),
			)
			h.deadLetter(data, err.Error())
			return nil
		}
		return fmt.Errorf("fan-out failed: %w", err)
	}

	h.logger.Info("Requested event fanned out",
		zap.String("tenant_id", payload.TenantID),
		zap.String("type_name", payload.TypeName),
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
	)
	return nil
}

func (h *RequestedHandler) deadLetter(body []byte, reason string) {
	h.logger.Error("Dead-lettering requested event", zap.String("reason", reason))
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(mq.RoutingNotificationRequested, body, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}

// messageKey identifies a message for the redelivery guard: the idempotency
// key when the producer set one, a body hash otherwise.
func messageKey(payload mq.NotificationRequestedPayload, body []byte) string {
	if payload.IdempotencyKey != "" {
		return payload.IdempotencyKey
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
