package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
)

// PreferenceService reads and writes per-user notification subscriptions.
// Rows are materialized lazily: a user without a row falls back to the
// notification type's defaults.
type PreferenceService struct {
	stores repository.StoreFactory
	users  provider.UserResolver
	logger *zap.Logger
	now    func() time.Time
}

func NewPreferenceService(stores repository.StoreFactory, users provider.UserResolver, logger *zap.Logger) *PreferenceService {
	return &PreferenceService{stores: stores, users: users, logger: logger, now: time.Now}
}

// Get returns the stored preference, or nil when the user has none and the
// type defaults apply.
func (s *PreferenceService) Get(ctx context.Context, tenantID, userID, typeID string) (*model.UserNotificationPreference, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	pref, err := store.Preferences().Get(ctx, userID, typeID)
	if err == repository.ErrNotFound {
		return nil, nil
	}
	return pref, err
}

// Update materializes or replaces a preference row seeded from the type
// defaults for any field the caller leaves unset.
func (s *PreferenceService) Update(ctx context.Context, tenantID, userID string, p *model.UserNotificationPreference) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}

	t, err := store.Types().GetByID(ctx, p.TypeID)
	if err == repository.ErrNotFound {
		return ErrTypeNotFound
	}
	if err != nil {
		return err
	}

	p.UserID = userID
	seedFromType(p, t)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Source == "" {
		p.Source = model.SourceManual
	}
	return store.Preferences().Upsert(ctx, p)
}

// Subscribe enables a user's subscription to a type, enforcing the type's
// gates: it must be active, the user must hold the required permission, and
// structured subscription conditions must hold right now. Violations are
// surfaced as precondition errors, never silently dropped.
func (s *PreferenceService) Subscribe(ctx context.Context, tenantID, userID, typeName string) (*model.UserNotificationPreference, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}

	t, err := store.Types().GetByName(ctx, typeName)
	if err == repository.ErrNotFound {
		return nil, ErrTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrTypeInactive
	}

	if t.RequiredPermission != "" {
		ok, err := s.users.UserHasPermission(ctx, tenantID, userID, t.RequiredPermission)
		if err != nil {
			return nil, fmt.Errorf("failed to check permission: %w", err)
		}
		if !ok {
			return nil, ErrPermissionDenied
		}
	}

	if len(t.SubscriptionConditions) > 0 {
		ok, err := s.users.UserMatchesConditions(ctx, tenantID, userID, toProviderConditions(t.SubscriptionConditions))
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate subscription conditions: %w", err)
		}
		if !ok {
			return nil, ErrConditionNotMet
		}
	}

	pref, err := store.Preferences().Get(ctx, userID, t.ID)
	if err != nil && err != repository.ErrNotFound {
		return nil, err
	}
	if pref == nil {
		pref = &model.UserNotificationPreference{
			ID:     uuid.NewString(),
			UserID: userID,
			TypeID: t.ID,
			Source: model.SourceManual,
		}
	}
	pref.Enabled = true
	seedFromType(pref, t)
	if err := store.Preferences().Upsert(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

// Unsubscribe disables the subscription, materializing a disabled row so the
// opt-out survives type-default changes.
func (s *PreferenceService) Unsubscribe(ctx context.Context, tenantID, userID, typeName string) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}

	t, err := store.Types().GetByName(ctx, typeName)
	if err == repository.ErrNotFound {
		return ErrTypeNotFound
	}
	if err != nil {
		return err
	}

	pref, err := store.Preferences().Get(ctx, userID, t.ID)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	if pref == nil {
		pref = &model.UserNotificationPreference{
			ID:     uuid.NewString(),
			UserID: userID,
			TypeID: t.ID,
			Source: model.SourceManual,
		}
		seedFromType(pref, t)
	}
	pref.Enabled = false
	return store.Preferences().Upsert(ctx, pref)
}

// List returns the user's materialized preferences.
func (s *PreferenceService) List(ctx context.Context, tenantID, userID string) ([]*model.UserNotificationPreference, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return store.Preferences().ListForUser(ctx, userID)
}

// RefreshAutoSubscriptions materializes auto-source rows for every active
// auto-subscribe type and every subscriber currently satisfying its
// conditions. Manually-written rows are never touched.
func (s *PreferenceService) RefreshAutoSubscriptions(ctx context.Context, tenantID string) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}

	types, err := store.Types().List(ctx)
	if err != nil {
		return err
	}

	for _, t := range types {
		if !t.IsActive || !t.AutoSubscribe {
			continue
		}
		userIDs, err := s.users.GetSubscribers(ctx, tenantID, t.ID)
		if err != nil {
			s.logger.Warn("Failed to resolve subscribers for auto-subscription",
				zap.String("type", t.Name), zap.Error(err))
			continue
		}
		for _, userID := range userIDs {
			existing, err := store.Preferences().Get(ctx, userID, t.ID)
			if err != nil && err != repository.ErrNotFound {
				return err
			}
			if existing != nil {
				continue
			}
			if len(t.SubscriptionConditions) > 0 {
				ok, err := s.users.UserMatchesConditions(ctx, tenantID, userID, toProviderConditions(t.SubscriptionConditions))
				if err != nil || !ok {
					continue
				}
			}
			pref := &model.UserNotificationPreference{
				ID:      uuid.NewString(),
				UserID:  userID,
				TypeID:  t.ID,
				Enabled: true,
				Source:  model.SourceAuto,
			}
			seedFromType(pref, t)
			if err := store.Preferences().Upsert(ctx, pref); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedFromType(p *model.UserNotificationPreference, t *model.NotificationType) {
	if len(p.Channels) == 0 {
		p.Channels = t.DefaultChannels
	}
	if p.Frequency == "" {
		p.Frequency = t.DefaultFrequency
	}
}

func toProviderConditions(conditions []model.SubscriptionCondition) []provider.Condition {
	out := make([]provider.Condition, len(conditions))
	for i, c := range conditions {
		out[i] = provider.Condition{Kind: c.Kind, Value: c.Value}
	}
	return out
}
