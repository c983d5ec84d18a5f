package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"notification-engine/contracts/mq"
	"notification-engine/internal/channel"
	"notification-engine/internal/model"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
	"notification-engine/pkg/metrics"
)

// MaxDeliveryAttempts bounds retries: after this many failed attempts a
// notification is terminally failed.
const MaxDeliveryAttempts = 3

// deliveryGroupSize caps simultaneous channel-adapter calls in a sweep pass.
const deliveryGroupSize = 10

// OutboxWriter records an integration event for asynchronous publishing.
// Satisfied by outbox.Repository.
type OutboxWriter interface {
	Insert(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error
}

// DeliveryService pushes pending notifications through their channel
// adapters, tracking attempts and moving rows through the status machine.
type DeliveryService struct {
	stores    repository.StoreFactory
	registry  *channel.Registry
	templates provider.TemplateProvider
	users     provider.UserResolver
	outbox    OutboxWriter
	logger    *zap.Logger
	now       func() time.Time
}

func NewDeliveryService(
	stores repository.StoreFactory,
	registry *channel.Registry,
	templates provider.TemplateProvider,
	users provider.UserResolver,
	outbox OutboxWriter,
	logger *zap.Logger,
) *DeliveryService {
	return &DeliveryService{
		stores:    stores,
		registry:  registry,
		templates: templates,
		users:     users,
		outbox:    outbox,
		logger:    logger,
		now:       time.Now,
	}
}

// Deliver attempts one notification. Terminal rows are left alone, expiry is
// re-checked before the adapter is called, and adapter failures keep the row
// pending until the attempt limit is reached. Only configuration problems
// are returned as errors.
func (s *DeliveryService) Deliver(ctx context.Context, n *model.Notification) error {
	if n.Status.IsTerminal() {
		return nil
	}

	store, err := s.stores.ForTenant(n.TenantID)
	if err != nil {
		return err
	}
	repo := store.Notifications()
	now := s.now()

	if n.Expired(now) {
		if err := repo.UpdateStatus(ctx, n.ID, model.StatusExpired); err != nil {
			return err
		}
		metrics.Deliveries.WithLabelValues(n.Channel, "expired").Inc()
		return nil
	}

	adapter, ok := s.registry.Get(n.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotRegistered, n.Channel)
	}

	usable, err := s.addressUsable(ctx, store, adapter, n)
	if err != nil {
		return err
	}
	if !usable {
		if err := repo.UpdateStatus(ctx, n.ID, model.StatusSkipped); err != nil {
			return err
		}
		metrics.Deliveries.WithLabelValues(n.Channel, "skipped").Inc()
		return nil
	}

	content, suppressed, err := s.render(ctx, n)
	if err != nil {
		return s.recordFailure(ctx, repo, n, err.Error(), now)
	}
	if suppressed {
		if err := repo.UpdateStatus(ctx, n.ID, model.StatusSkipped); err != nil {
			return err
		}
		metrics.Deliveries.WithLabelValues(n.Channel, "skipped").Inc()
		return nil
	}

	started := s.now()
	sendResult, err := adapter.Send(ctx, n, content, s.users)
	elapsed := s.now().Sub(started)

	if err != nil || !sendResult.Success {
		reason := sendResult.Error
		if err != nil {
			reason = err.Error()
		}
		metrics.DeliveryLatency.WithLabelValues(n.Channel).Observe(elapsed.Seconds())
		return s.recordFailure(ctx, repo, n, reason, now)
	}

	attempt := model.DeliveryAttempt{
		Channel:     n.Channel,
		AttemptedAt: now,
		Success:     true,
		MessageID:   sendResult.MessageID,
	}
	if err := repo.AppendAttempt(ctx, n.ID, attempt); err != nil {
		return err
	}
	if err := repo.MarkSent(ctx, n.ID, now); err != nil {
		return err
	}
	metrics.RecordDelivery(n.Channel, "sent", elapsed)

	if err := s.outbox.Insert(ctx, "notification", n.ID, mq.RoutingNotificationSent, mq.NotificationSentPayload{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		SentAt:         now,
	}); err != nil {
		s.logger.Error("Failed to record sent event", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

// DeliverGroup processes notifications in fixed-size groups, bounding the
// number of simultaneous adapter calls. Returns how many ended sent.
func (s *DeliveryService) DeliverGroup(ctx context.Context, notifications []*model.Notification) int {
	sent := 0
	var mu sync.Mutex

	for start := 0; start < len(notifications); start += deliveryGroupSize {
		end := start + deliveryGroupSize
		if end > len(notifications) {
			end = len(notifications)
		}

		var wg sync.WaitGroup
		for _, n := range notifications[start:end] {
			wg.Add(1)
			go func(n *model.Notification) {
				defer wg.Done()
				if err := s.Deliver(ctx, n); err != nil {
					s.logger.Error("Delivery failed",
						zap.String("notification_id", n.ID),
						zap.String("channel", n.Channel),
						zap.Error(err),
					)
					return
				}
				fresh, err := s.reload(ctx, n)
				if err == nil && fresh.Status == model.StatusSent {
					mu.Lock()
					sent++
					mu.Unlock()
				}
			}(n)
		}
		wg.Wait()
	}
	return sent
}

// DeliverDigest sends one batch's aggregated digest through the channel
// adapter, recording the attempt on the batch itself. The digest notification
// is synthesized by the aggregator and never persisted.
func (s *DeliveryService) DeliverDigest(ctx context.Context, batch *model.NotificationBatch, digest *model.Notification) error {
	store, err := s.stores.ForTenant(batch.TenantID)
	if err != nil {
		return err
	}

	adapter, ok := s.registry.Get(batch.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotRegistered, batch.Channel)
	}

	content := channel.RenderedContent{
		Subject: digest.Title,
		Text:    digest.Body,
	}

	now := s.now()
	started := s.now()
	sendResult, err := adapter.Send(ctx, digest, content, s.users)
	elapsed := s.now().Sub(started)
	metrics.DeliveryLatency.WithLabelValues(batch.Channel).Observe(elapsed.Seconds())

	attempt := model.DeliveryAttempt{
		Channel:     batch.Channel,
		AttemptedAt: now,
		Success:     err == nil && sendResult.Success,
		MessageID:   sendResult.MessageID,
	}
	if err != nil {
		attempt.Error = err.Error()
	} else if !sendResult.Success {
		attempt.Error = sendResult.Error
	}
	if recordErr := store.Batches().AppendAttempt(ctx, batch.ID, attempt); recordErr != nil {
		s.logger.Error("Failed to record batch attempt", zap.String("batch_id", batch.ID), zap.Error(recordErr))
	}

	if !attempt.Success {
		return fmt.Errorf("digest delivery failed: %s", attempt.Error)
	}
	return nil
}

// addressUsable applies per-user channel address gating: a known but
// disabled or invalid destination suppresses the send. A user without a
// stored address is allowed through; the adapter resolves the destination.
func (s *DeliveryService) addressUsable(ctx context.Context, store repository.Store, adapter channel.Channel, n *model.Notification) (bool, error) {
	addr, err := store.Addresses().Get(ctx, n.UserID, n.Channel)
	if err == repository.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !addr.Usable() {
		return false, nil
	}
	return adapter.ValidateAddress(addr.Address), nil
}

// render resolves the template chain and produces the send content.
// suppressed=true means the recipient may not see any of the protected
// content and the notification must be skipped rather than sent.
func (s *DeliveryService) render(ctx context.Context, n *model.Notification) (channel.RenderedContent, bool, error) {
	tmpl, err := s.templates.GetTemplate(ctx, n.TypeID, n.Channel, n.Locale)
	if err != nil || tmpl == nil {
		tmpl, err = s.templates.GetFallbackTemplate(ctx, n.Channel)
		if err != nil {
			tmpl = nil
		}
	}
	if tmpl == nil {
		return s.synthesize(n), false, nil
	}

	checker, err := s.users.CreateDataAccessChecker(ctx, n.TenantID, n.UserID)
	if err != nil {
		return channel.RenderedContent{}, false, fmt.Errorf("failed to create data access checker: %w", err)
	}

	res, err := s.templates.RenderTemplate(ctx, tmpl, n.Metadata, provider.RenderOptions{
		Locale:     n.Locale,
		DataAccess: checker,
	})
	if err != nil {
		return channel.RenderedContent{}, false, fmt.Errorf("failed to render template: %w", err)
	}

	if !res.HasContent {
		switch res.Reason {
		case provider.RenderNoDataAccess:
			return channel.RenderedContent{}, true, nil
		default:
			return s.synthesize(n), false, nil
		}
	}
	return channel.RenderedContent{Subject: res.Subject, Text: res.Text, HTML: res.HTML}, false, nil
}

// synthesize builds the minimal fallback message used when no template is
// bound or rendering produced nothing.
func (s *DeliveryService) synthesize(n *model.Notification) channel.RenderedContent {
	subject := n.Title
	if subject == "" {
		subject = n.TypeName
	}
	text := n.Body
	if text == "" {
		text = subject
	}
	return channel.RenderedContent{Subject: subject, Text: text}
}

// recordFailure appends a failed attempt; at the attempt limit the row turns
// terminally failed, otherwise it stays pending for the next sweep.
func (s *DeliveryService) recordFailure(ctx context.Context, repo repository.NotificationRepository, n *model.Notification, reason string, now time.Time) error {
	attempt := model.DeliveryAttempt{
		Channel:     n.Channel,
		AttemptedAt: now,
		Success:     false,
		Error:       reason,
	}
	if err := repo.AppendAttempt(ctx, n.ID, attempt); err != nil {
		return err
	}

	failed := n.FailedAttempts() + 1
	if failed < MaxDeliveryAttempts {
		metrics.Deliveries.WithLabelValues(n.Channel, "retryable").Inc()
		s.logger.Warn("Delivery attempt failed, will retry",
			zap.String("notification_id", n.ID),
			zap.String("channel", n.Channel),
			zap.Int("failed_attempts", failed),
			zap.String("error", reason),
		)
		return nil
	}

	if err := repo.UpdateStatus(ctx, n.ID, model.StatusFailed); err != nil {
		return err
	}
	metrics.Deliveries.WithLabelValues(n.Channel, "failed").Inc()

	if err := s.outbox.Insert(ctx, "notification", n.ID, mq.RoutingNotificationFailed, mq.NotificationFailedPayload{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		Error:          reason,
		Attempts:       failed,
	}); err != nil {
		s.logger.Error("Failed to record failed event", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

func (s *DeliveryService) reload(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	store, err := s.stores.ForTenant(n.TenantID)
	if err != nil {
		return nil, err
	}
	return store.Notifications().GetByID(ctx, n.ID)
}
