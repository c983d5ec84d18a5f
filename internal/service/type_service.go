package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/repository"
)

// TypeService administers the tenant's notification type catalog. Types are
// soft-disabled through the active flag, never hard-deleted, because
// notifications keep referencing them.
type TypeService struct {
	stores repository.StoreFactory
	logger *zap.Logger
	now    func() time.Time
}

func NewTypeService(stores repository.StoreFactory, logger *zap.Logger) *TypeService {
	return &TypeService{stores: stores, logger: logger, now: time.Now}
}

// Create registers a new type. Names are unique per tenant.
func (s *TypeService) Create(ctx context.Context, tenantID string, t *model.NotificationType) (*model.NotificationType, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}

	existing, err := store.Types().GetByName(ctx, t.Name)
	if err != nil && err != repository.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, ErrTypeNameTaken
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DefaultFrequency == "" {
		t.DefaultFrequency = model.FrequencyImmediate
	}
	if t.DefaultPriority == "" {
		t.DefaultPriority = model.PriorityNormal
	}
	t.IsActive = true
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := store.Types().Insert(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Notification type created",
		zap.String("tenant_id", tenantID),
		zap.String("type", t.Name),
	)
	return t, nil
}

// Update replaces a type's configuration. A rename onto another type's name
// is rejected.
func (s *TypeService) Update(ctx context.Context, tenantID string, t *model.NotificationType) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}

	current, err := store.Types().GetByID(ctx, t.ID)
	if err == repository.ErrNotFound {
		return ErrTypeNotFound
	}
	if err != nil {
		return err
	}

	if t.Name != current.Name {
		clash, err := store.Types().GetByName(ctx, t.Name)
		if err != nil && err != repository.ErrNotFound {
			return err
		}
		if clash != nil {
			return ErrTypeNameTaken
		}
	}

	t.UpdatedAt = s.now()
	return store.Types().Update(ctx, t)
}

func (s *TypeService) Get(ctx context.Context, tenantID, id string) (*model.NotificationType, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	t, err := store.Types().GetByID(ctx, id)
	if err == repository.ErrNotFound {
		return nil, ErrTypeNotFound
	}
	return t, err
}

func (s *TypeService) GetByName(ctx context.Context, tenantID, name string) (*model.NotificationType, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	t, err := store.Types().GetByName(ctx, name)
	if err == repository.ErrNotFound {
		return nil, ErrTypeNotFound
	}
	return t, err
}

func (s *TypeService) List(ctx context.Context, tenantID string) ([]*model.NotificationType, error) {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return store.Types().List(ctx)
}

// SetActive soft-enables or soft-disables a type.
func (s *TypeService) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	store, err := s.stores.ForTenant(tenantID)
	if err != nil {
		return err
	}
	if err := store.Types().SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info("Notification type active flag changed",
		zap.String("tenant_id", tenantID),
		zap.String("type_id", id),
		zap.Bool("active", active),
	)
	return nil
}
