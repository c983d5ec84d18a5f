package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/repository"
	"notification-engine/internal/token"
	"notification-engine/pkg/metrics"
)

// ActionHandler executes the side effect behind one action type. The
// returned map is stored as the action's result data.
type ActionHandler func(ctx context.Context, n *model.Notification, actionData map[string]any) (map[string]any, error)

// ActionService executes notification actions at most once per
// (notification, action type) and keeps the audit trail.
type ActionService struct {
	stores   repository.StoreFactory
	tokens   *token.Service
	handlers map[string]ActionHandler
	logger   *zap.Logger
	now      func() time.Time
}

func NewActionService(stores repository.StoreFactory, tokens *token.Service, logger *zap.Logger) *ActionService {
	return &ActionService{
		stores:   stores,
		tokens:   tokens,
		handlers: make(map[string]ActionHandler),
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterHandler binds a handler to an action type during wiring. Binding
// the same type twice is a configuration error.
func (s *ActionService) RegisterHandler(actionType string, h ActionHandler) error {
	if actionType == "" {
		return fmt.Errorf("action type must not be empty")
	}
	if _, ok := s.handlers[actionType]; ok {
		return fmt.Errorf("action handler for %q registered twice", actionType)
	}
	s.handlers[actionType] = h
	return nil
}

// Execute runs one action against one notification. A prior completed action
// of the same type rejects the call with ErrAlreadyActioned. An action type
// with no registered handler completes with no side effect, supporting
// acknowledgment-only actions.
func (s *ActionService) Execute(ctx context.Context, tenantID, userID, notificationID, actionType string, actionData map[string]any) (*model.NotificationAction, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, store, userID, notificationID, actionType, actionData, "")
}

// ExecuteByToken validates a signed action token, runs the action, and
// consumes the token only after success so a failed handler leaves it
// usable for retry.
func (s *ActionService) ExecuteByToken(ctx context.Context, tok string, actionData map[string]any) (*model.NotificationAction, error) {
	payload, err := s.tokens.Validate(ctx, tok)
	if err != nil {
		metrics.ActionsExecuted.WithLabelValues("token", "rejected").Inc()
		return nil, err
	}

	store, err := s.stores.ForTenant(payload.TenantID)
	if err != nil {
		return nil, err
	}

	action, err := s.execute(ctx, store, payload.UserID, payload.NotificationID, payload.ActionType, actionData, "")
	if err != nil {
		return nil, err
	}
	if action.Status != model.ActionCompleted {
		return action, nil
	}

	if err := s.tokens.Consume(ctx, payload); err != nil {
		s.logger.Error("Failed to consume action token",
			zap.String("token_id", payload.TokenID),
			zap.String("notification_id", payload.NotificationID),
			zap.Error(err),
		)
	}
	return action, nil
}

// ExecuteBatch runs one action type across a notification list sequentially
// under an umbrella record. The umbrella status is completed when every row
// succeeded, failed when every row failed, partial otherwise.
func (s *ActionService) ExecuteBatch(ctx context.Context, tenantID, userID, actionType string, notificationIDs []string, actionData map[string]any) (*model.NotificationBatchAction, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}

	batch := &model.NotificationBatchAction{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		UserID:          userID,
		ActionType:      actionType,
		Status:          model.ActionPartial,
		NotificationIDs: notificationIDs,
		ExecutedAt:      s.now(),
	}
	if err := store.Actions().InsertBatchAction(ctx, batch); err != nil {
		return nil, err
	}

	for _, id := range notificationIDs {
		action, err := s.execute(ctx, store, userID, id, actionType, actionData, batch.ID)
		if err != nil || action.Status != model.ActionCompleted {
			batch.FailedCount++
			continue
		}
		batch.SucceededCount++
	}

	switch {
	case batch.FailedCount == 0:
		batch.Status = model.ActionCompleted
	case batch.SucceededCount == 0:
		batch.Status = model.ActionFailed
	default:
		batch.Status = model.ActionPartial
	}
	if err := store.Actions().UpdateBatchAction(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *ActionService) execute(
	ctx context.Context,
	store repository.Store,
	userID, notificationID, actionType string,
	actionData map[string]any,
	batchActionID string,
) (*model.NotificationAction, error) {
	n, err := store.Notifications().GetByID(ctx, notificationID)
	if err == repository.ErrNotFound {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}

	done, err := store.Actions().HasCompleted(ctx, notificationID, actionType)
	if err != nil {
		return nil, err
	}
	if done {
		metrics.ActionsExecuted.WithLabelValues(actionType, "rejected").Inc()
		return nil, ErrAlreadyActioned
	}

	action := &model.NotificationAction{
		ID:             uuid.NewString(),
		TenantID:       n.TenantID,
		NotificationID: notificationID,
		UserID:         userID,
		ActionType:     actionType,
		ActionData:     actionData,
		BatchActionID:  batchActionID,
		ExecutedAt:     s.now(),
	}

	handler, ok := s.handlers[actionType]
	if !ok {
		// Acknowledgment-only action: logged as completed, no side effect.
		action.Status = model.ActionCompleted
	} else {
		result, err := handler(ctx, n, actionData)
		if err != nil {
			action.Status = model.ActionFailed
			action.Error = err.Error()
			s.logger.Warn("Action handler failed",
				zap.String("notification_id", notificationID),
				zap.String("action_type", actionType),
				zap.Error(err),
			)
		} else {
			action.Status = model.ActionCompleted
			action.Result = result
		}
	}

	if err := store.Actions().Insert(ctx, action); err != nil {
		return nil, err
	}
	metrics.ActionsExecuted.WithLabelValues(actionType, string(action.Status)).Inc()
	return action, nil
}

// GenerateActionToken issues a signed one-click token for a notification
// action, used when composing outbound messages with embedded action links.
func (s *ActionService) GenerateActionToken(tenantID, userID, notificationID, actionType string) (string, error) {
	return s.tokens.Generate(tenantID, userID, notificationID, actionType)
}

// ListForNotification returns the audit trail of actions executed against
// one notification.
func (s *ActionService) ListForNotification(ctx context.Context, tenantID, notificationID string) ([]*model.NotificationAction, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return store.Actions().ListForNotification(ctx, notificationID)
}

// MarkRead records the recipient reading a delivered notification. Only the
// owning user may mark it and only sent rows transition.
func (s *ActionService) MarkRead(ctx context.Context, tenantID, userID, notificationID string) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}
	n, err := store.Notifications().GetByID(ctx, notificationID)
	if err == repository.ErrNotFound {
		return ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotificationNotFound
	}
	if n.Status != model.StatusSent {
		return nil
	}
	return store.Notifications().MarkRead(ctx, notificationID, s.now())
}
