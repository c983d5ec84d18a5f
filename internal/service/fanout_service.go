package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-engine/internal/eventkey"
	"notification-engine/internal/model"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
	"notification-engine/internal/schedule"
	"notification-engine/pkg/logger"
	"notification-engine/pkg/metrics"
)

// SendRequest asks the engine to fan out one logical notification.
type SendRequest struct {
	TenantID       string
	TypeName       string
	Data           map[string]any
	UserIDs        []string
	IdempotencyKey string
	EventKey       string
	Priority       model.Priority
	ExpiresAt      *time.Time
	Locale         string
}

// RecipientError is one recipient's isolated fan-out failure.
type RecipientError struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// SendResult reports the outcome per recipient. A request with failed
// recipients is a partial result, not an error.
type SendResult struct {
	Created []string         `json:"created"`
	Updated []string         `json:"updated"`
	Skipped []string         `json:"skipped"`
	Errors  []RecipientError `json:"errors,omitempty"`
}

// FanoutService turns a send request into zero or more notification rows,
// one per (user, channel) pair. It is safe to invoke repeatedly for the same
// logical event: idempotency keys and event keys make replays converge on
// the same rows.
type FanoutService struct {
	stores repository.StoreFactory
	users  provider.UserResolver
	logger *zap.Logger
	now    func() time.Time
}

func NewFanoutService(stores repository.StoreFactory, users provider.UserResolver, logger *zap.Logger) *FanoutService {
	return &FanoutService{stores: stores, users: users, logger: logger, now: time.Now}
}

// Send fans out a request across its recipients. Per-recipient failures are
// collected into the result; only tenant-level and type-level problems abort
// the whole request. A replayed idempotency key resolves every (user,
// channel) pair to its original row.
func (s *FanoutService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	store, err := s.stores.ForTenant(req.TenantID)
	if err != nil {
		return nil, err
	}

	result := &SendResult{}

	t, err := store.Types().GetByName(ctx, req.TypeName)
	if err == repository.ErrNotFound {
		return nil, ErrTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrTypeInactive
	}

	active, err := s.users.TenantActive(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	if !active {
		return nil, ErrUserNotEligible
	}

	recipients := req.UserIDs
	if len(recipients) == 0 {
		recipients, err = s.users.GetSubscribers(ctx, req.TenantID, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subscribers: %w", err)
		}
	}

	now := s.now()
	for _, userID := range recipients {
		if err := s.fanOutToUser(ctx, store, t, req, userID, now, result); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Recipient fan-out failed",
				zap.String("tenant_id", req.TenantID),
				zap.String("type", t.Name),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, RecipientError{UserID: userID, Reason: err.Error()})
		}
	}

	return result, nil
}

func (s *FanoutService) fanOutToUser(
	ctx context.Context,
	store repository.Store,
	t *model.NotificationType,
	req SendRequest,
	userID string,
	now time.Time,
	result *SendResult,
) error {
	user, err := s.users.GetUser(ctx, req.TenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user == nil || !user.Active || user.TenantID != req.TenantID {
		return ErrUserNotEligible
	}

	pref, err := store.Preferences().Get(ctx, userID, t.ID)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	if err == repository.ErrNotFound {
		pref = nil
	}
	if pref != nil && !pref.Enabled {
		result.Skipped = append(result.Skipped, userID)
		return nil
	}

	key := req.EventKey
	if key == "" && t.DedupPolicy.Enabled() {
		key = eventkey.Compute(req.Data, t.DedupPolicy.EventKeyFields)
	}

	locale := req.Locale
	if locale == "" {
		locale = user.Locale
	}

	for _, channelName := range pref.EffectiveChannels(t) {
		created, updated, skipped, err := s.fanOutToChannel(ctx, store, t, req, user, pref, channelName, key, locale, now)
		if err != nil {
			return err
		}
		if created != "" {
			result.Created = append(result.Created, created)
		}
		if updated != "" {
			result.Updated = append(result.Updated, updated)
		}
		if skipped != "" {
			result.Skipped = append(result.Skipped, skipped)
		}
	}
	return nil
}

// fanOutToChannel reconciles one (user, channel) pair against the idempotency
// key and the dedup policy, then persists the row. Returns the created id,
// the updated id, the skipped id, or none when dedup suppressed the send.
func (s *FanoutService) fanOutToChannel(
	ctx context.Context,
	store repository.Store,
	t *model.NotificationType,
	req SendRequest,
	user *provider.User,
	pref *model.UserNotificationPreference,
	channelName, key, locale string,
	now time.Time,
) (created string, updated string, skipped string, err error) {
	// The stored key is derived per (user, channel) so one request key fans
	// out to many rows without colliding on the unique constraint. A replay
	// resolves each pair to its original row.
	idemKey := rowIdempotencyKey(req.IdempotencyKey, user.ID, channelName)
	if idemKey != "" {
		existing, err := store.Notifications().FindByIdempotencyKey(ctx, idemKey)
		if err != nil && err != repository.ErrNotFound {
			return "", "", "", err
		}
		if existing != nil {
			metrics.DedupHits.WithLabelValues("idempotency_key").Inc()
			return "", "", existing.ID, nil
		}
	}

	strategy := t.DedupPolicy.Strategy
	if key != "" && (strategy == model.DedupIgnore || strategy == model.DedupOverwrite) {
		existing, err := store.Notifications().FindByEventKey(ctx, user.ID, t.ID, key)
		if err != nil && err != repository.ErrNotFound {
			return "", "", "", err
		}
		if existing != nil && insideUpdateWindow(existing, t.DedupPolicy, now) {
			switch strategy {
			case model.DedupIgnore:
				metrics.DedupHits.WithLabelValues("ignore").Inc()
				return "", "", "", nil
			case model.DedupOverwrite:
				if err := store.Notifications().Overwrite(ctx, existing.ID, req.Data); err != nil {
					return "", "", "", err
				}
				metrics.DedupHits.WithLabelValues("overwrite").Inc()
				return "", existing.ID, "", nil
			}
		}
	}

	n := &model.Notification{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		UserID:         user.ID,
		TypeID:         t.ID,
		TypeName:       t.Name,
		Channel:        channelName,
		Metadata:       req.Data,
		Status:         model.StatusPending,
		Priority:       s.priority(req, t),
		Locale:         locale,
		EventKey:       key,
		EventVersion:   1,
		IdempotencyKey: idemKey,
		ExpiresAt:      s.expiresAt(req, t, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if pref.EffectiveFrequency(t) == model.FrequencyBatched {
		if err := s.attachToBatch(ctx, store, n, pref.EffectiveBatchInterval(t), user, pref, now); err != nil {
			return "", "", "", err
		}
	} else if err := s.deferForQuietHours(n, pref, now); err != nil {
		return "", "", "", err
	}

	if err := store.Notifications().Insert(ctx, n); err != nil {
		// A concurrent replay may win the insert race; the unique constraint
		// on idempotency_key makes the loser converge on the winner's row.
		if err == repository.ErrDuplicate && idemKey != "" {
			existing, ferr := store.Notifications().FindByIdempotencyKey(ctx, idemKey)
			if ferr == nil {
				metrics.DedupHits.WithLabelValues("idempotency_key").Inc()
				return "", "", existing.ID, nil
			}
		}
		return "", "", "", err
	}
	metrics.NotificationsCreated.WithLabelValues(t.Name, channelName, string(n.Status)).Inc()
	return n.ID, "", "", nil
}

// rowIdempotencyKey derives the globally unique key stored on one row from
// the request-level key.
func rowIdempotencyKey(requestKey, userID, channelName string) string {
	if requestKey == "" {
		return ""
	}
	return requestKey + ":" + userID + ":" + channelName
}

// attachToBatch schedules the notification into the open digest batch for
// its (user, type, channel) key, creating the batch when none is open. The
// preference timezone overrides the resolver's when set.
func (s *FanoutService) attachToBatch(
	ctx context.Context,
	store repository.Store,
	n *model.Notification,
	interval model.BatchInterval,
	user *provider.User,
	pref *model.UserNotificationPreference,
	now time.Time,
) error {
	tz := user.Timezone
	if pref != nil && pref.Timezone != "" {
		tz = pref.Timezone
	}
	loc := time.UTC
	if tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err == nil {
			loc = parsed
		}
	}
	scheduledFor := schedule.At(interval, loc, now)

	batch, err := store.Batches().FindOpen(ctx, n.UserID, n.TypeID, n.Channel, now)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	if batch == nil {
		batch = &model.NotificationBatch{
			ID:           uuid.NewString(),
			TenantID:     n.TenantID,
			UserID:       n.UserID,
			TypeID:       n.TypeID,
			Channel:      n.Channel,
			Interval:     interval,
			Status:       model.BatchPending,
			ScheduledFor: scheduledFor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.Batches().Insert(ctx, batch); err != nil {
			return err
		}
	}

	n.Status = model.StatusBatched
	n.BatchID = batch.ID
	n.ScheduledFor = &batch.ScheduledFor
	return nil
}

// deferForQuietHours pushes an immediate send created inside the user's
// quiet window out to the window's end.
func (s *FanoutService) deferForQuietHours(n *model.Notification, pref *model.UserNotificationPreference, now time.Time) error {
	if pref == nil || pref.QuietHours == nil {
		return nil
	}
	in, err := InQuietHours(*pref.QuietHours, now)
	if err != nil || !in {
		return err
	}
	end, err := QuietHoursEnd(*pref.QuietHours, now)
	if err != nil {
		return err
	}
	n.ScheduledFor = &end
	return nil
}

func (s *FanoutService) priority(req SendRequest, t *model.NotificationType) model.Priority {
	if req.Priority != "" {
		return req.Priority
	}
	if t.DefaultPriority != "" {
		return t.DefaultPriority
	}
	return model.PriorityNormal
}

func (s *FanoutService) expiresAt(req SendRequest, t *model.NotificationType, now time.Time) *time.Time {
	if req.ExpiresAt != nil {
		return req.ExpiresAt
	}
	if t.DefaultExpiresAfterHour > 0 {
		at := now.Add(time.Duration(t.DefaultExpiresAfterHour) * time.Hour)
		return &at
	}
	return nil
}

// insideUpdateWindow reports whether the existing row is still young enough
// for the ignore/overwrite strategies to apply. Outside the window every
// strategy behaves as create_new.
func insideUpdateWindow(existing *model.Notification, policy model.DedupPolicy, now time.Time) bool {
	if policy.UpdateWindowMinutes <= 0 {
		return true
	}
	cutoff := existing.CreatedAt.Add(time.Duration(policy.UpdateWindowMinutes) * time.Minute)
	return now.Before(cutoff)
}
