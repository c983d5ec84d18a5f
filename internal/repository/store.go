// Package repository provides typed, tenant-scoped data access. Stores are
// only obtainable through a StoreFactory, which refuses to hand out a store
// without a tenant: tenant isolation is enforced by construction, not by
// convention at each call site.
package repository

import (
	"context"
	"errors"
	"time"

	"notification-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist in the
// store's tenant.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a unique constraint,
// such as the global index on notifications.idempotency_key.
var ErrDuplicate = errors.New("duplicate")

// NotificationRepository persists notifications and their attempt history.
type NotificationRepository interface {
	Insert(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Notification, error)
	FindByEventKey(ctx context.Context, userID, typeID, eventKey string) (*model.Notification, error)
	// Overwrite replaces metadata on an existing row and bumps its event
	// version (dedup strategy "overwrite").
	Overwrite(ctx context.Context, id string, metadata map[string]any) error
	UpdateStatus(ctx context.Context, id string, status model.NotificationStatus) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, id string, at time.Time) error
	AppendAttempt(ctx context.Context, id string, attempt model.DeliveryAttempt) error
	FindByBatch(ctx context.Context, batchID string) ([]*model.Notification, error)
	SetStatusForBatch(ctx context.Context, batchID string, from, to model.NotificationStatus) error
	// FindDuePending returns non-terminal immediate notifications whose
	// scheduled time (if any) has arrived.
	FindDuePending(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
}

// NotificationTypeRepository is the tenant's notification type catalog.
type NotificationTypeRepository interface {
	Insert(ctx context.Context, t *model.NotificationType) error
	Update(ctx context.Context, t *model.NotificationType) error
	GetByID(ctx context.Context, id string) (*model.NotificationType, error)
	GetByName(ctx context.Context, name string) (*model.NotificationType, error)
	List(ctx context.Context) ([]*model.NotificationType, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// PreferenceRepository persists per-user per-type subscriptions.
type PreferenceRepository interface {
	Get(ctx context.Context, userID, typeID string) (*model.UserNotificationPreference, error)
	Upsert(ctx context.Context, p *model.UserNotificationPreference) error
	ListForUser(ctx context.Context, userID string) ([]*model.UserNotificationPreference, error)
}

// BatchRepository persists digest batches.
type BatchRepository interface {
	Insert(ctx context.Context, b *model.NotificationBatch) error
	GetByID(ctx context.Context, id string) (*model.NotificationBatch, error)
	// FindOpen returns the single open (pending) batch for the key whose
	// scheduled time is at or after notBefore, if one exists.
	FindOpen(ctx context.Context, userID, typeID, channelName string, notBefore time.Time) (*model.NotificationBatch, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationBatch, error)
	// ClaimProcessing transitions pending→processing and reports whether
	// this caller won the claim.
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status model.BatchStatus) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	SetAggregatedContent(ctx context.Context, id string, content *model.AggregatedContent) error
	AppendAttempt(ctx context.Context, id string, attempt model.DeliveryAttempt) error
}

// ActionRepository records action executions for audit and idempotency.
type ActionRepository interface {
	Insert(ctx context.Context, a *model.NotificationAction) error
	HasCompleted(ctx context.Context, notificationID, actionType string) (bool, error)
	ListForNotification(ctx context.Context, notificationID string) ([]*model.NotificationAction, error)
	InsertBatchAction(ctx context.Context, b *model.NotificationBatchAction) error
	UpdateBatchAction(ctx context.Context, b *model.NotificationBatchAction) error
}

// ChannelAddressRepository persists per-user channel destinations.
type ChannelAddressRepository interface {
	Get(ctx context.Context, userID, channelName string) (*model.ChannelAddress, error)
	Upsert(ctx context.Context, a *model.ChannelAddress) error
	RecordBounce(ctx context.Context, userID, channelName string, disableAt int) error
}

// Store bundles all repositories scoped to one tenant.
type Store interface {
	Tenant() string
	Notifications() NotificationRepository
	Types() NotificationTypeRepository
	Preferences() PreferenceRepository
	Batches() BatchRepository
	Actions() ActionRepository
	Addresses() ChannelAddressRepository
}

// StoreFactory hands out tenant-scoped stores.
type StoreFactory interface {
	ForTenant(tenant string) (Store, error)
}
