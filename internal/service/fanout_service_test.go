package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/provider"
)

const testTenant = "tenant-1"

func seedType(t *testing.T, factory *memFactory, nt *model.NotificationType) *model.NotificationType {
	t.Helper()
	if nt.ID == "" {
		nt.ID = "type-" + nt.Name
	}
	nt.TenantID = testTenant
	nt.IsActive = true
	if nt.DefaultFrequency == "" {
		nt.DefaultFrequency = model.FrequencyImmediate
	}
	if len(nt.DefaultChannels) == 0 {
		nt.DefaultChannels = []string{"email"}
	}
	store, err := factory.ForTenant(testTenant)
	require.NoError(t, err)
	require.NoError(t, store.Types().Insert(context.Background(), nt))
	return nt
}

func newFanoutFixture(t *testing.T) (*FanoutService, *memFactory, *fakeUsers) {
	t.Helper()
	factory := newMemFactory(testTenant)
	users := newFakeUsers(&provider.User{
		ID:       "user-1",
		TenantID: testTenant,
		Active:   true,
		Timezone: "UTC",
		Locale:   "en",
	})
	svc := NewFanoutService(factory, users, zap.NewNop())
	return svc, factory, users
}

func TestSendIdempotencyKeyYieldsOneRow(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{Name: "deal.won"})

	req := SendRequest{
		TenantID:       testTenant,
		TypeName:       "deal.won",
		UserIDs:        []string{"user-1"},
		IdempotencyKey: "req-42",
	}

	first, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, []string{first.Created[0]}, second.Skipped)

	assert.Len(t, factory.store.notifications, 1)
}

func TestSendIdempotencyKeySpansChannelsAndRecipients(t *testing.T) {
	svc, factory, users := newFanoutFixture(t)
	users.users["user-2"] = &provider.User{ID: "user-2", TenantID: testTenant, Active: true}
	seedType(t, factory, &model.NotificationType{
		Name:            "deal.won",
		DefaultChannels: []string{"email", "chat"},
	})

	req := SendRequest{
		TenantID:       testTenant,
		TypeName:       "deal.won",
		UserIDs:        []string{"user-1", "user-2"},
		IdempotencyKey: "req-7",
	}

	first, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 4)
	require.Empty(t, first.Errors)

	// Each row carries its own derived key, so the global unique constraint
	// holds across the whole fan-out.
	seen := map[string]bool{}
	for _, n := range factory.store.notifications {
		assert.False(t, seen[n.IdempotencyKey], "key %s stored twice", n.IdempotencyKey)
		seen[n.IdempotencyKey] = true
	}

	second, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.ElementsMatch(t, first.Created, second.Skipped)
	assert.Len(t, factory.store.notifications, 4)
}

func TestSendOverwriteBumpsEventVersion(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{
		Name: "deal.updated",
		DedupPolicy: model.DedupPolicy{
			Strategy:            model.DedupOverwrite,
			EventKeyFields:      []string{"deal_id"},
			UpdateWindowMinutes: 30,
		},
	})

	req := SendRequest{
		TenantID: testTenant,
		TypeName: "deal.updated",
		UserIDs:  []string{"user-1"},
		Data:     map[string]any{"deal_id": "d-9", "amount": 100},
	}

	first, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	req.Data = map[string]any{"deal_id": "d-9", "amount": 250}
	second, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Equal(t, []string{first.Created[0]}, second.Updated)

	n := factory.store.notifications[first.Created[0]]
	assert.Equal(t, 2, n.EventVersion)
	assert.Equal(t, 250, n.Metadata["amount"])
	assert.Len(t, factory.store.notifications, 1)
}

func TestSendIgnoreCreatesNothing(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{
		Name: "task.due",
		DedupPolicy: model.DedupPolicy{
			Strategy:            model.DedupIgnore,
			EventKeyFields:      []string{"task_id"},
			UpdateWindowMinutes: 30,
		},
	})

	req := SendRequest{
		TenantID: testTenant,
		TypeName: "task.due",
		UserIDs:  []string{"user-1"},
		Data:     map[string]any{"task_id": "t-1"},
	}

	first, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)
	assert.Len(t, factory.store.notifications, 1)
}

func TestSendOutsideUpdateWindowBehavesAsCreateNew(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{
		Name: "deal.updated",
		DedupPolicy: model.DedupPolicy{
			Strategy:            model.DedupOverwrite,
			EventKeyFields:      []string{"deal_id"},
			UpdateWindowMinutes: 30,
		},
	})

	req := SendRequest{
		TenantID: testTenant,
		TypeName: "deal.updated",
		UserIDs:  []string{"user-1"},
		Data:     map[string]any{"deal_id": "d-9"},
	}

	base := time.Now()
	svc.now = func() time.Time { return base }
	first, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	svc.now = func() time.Time { return base.Add(31 * time.Minute) }
	second, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, second.Created, 1)
	assert.Empty(t, second.Updated)
	assert.Len(t, factory.store.notifications, 2)
}

func TestSendSkipsDisabledPreference(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	nt := seedType(t, factory, &model.NotificationType{Name: "deal.won"})

	store, err := factory.ForTenant(testTenant)
	require.NoError(t, err)
	require.NoError(t, store.Preferences().Upsert(context.Background(), &model.UserNotificationPreference{
		ID:      "pref-1",
		UserID:  "user-1",
		TypeID:  nt.ID,
		Enabled: false,
	}))

	result, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant,
		TypeName: "deal.won",
		UserIDs:  []string{"user-1"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, []string{"user-1"}, result.Skipped)
	assert.Empty(t, factory.store.notifications)
}

func TestSendIsolatesRecipientFailures(t *testing.T) {
	svc, factory, users := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{Name: "deal.won"})
	users.users["user-2"] = &provider.User{ID: "user-2", TenantID: testTenant, Active: true}

	result, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant,
		TypeName: "deal.won",
		UserIDs:  []string{"ghost", "user-1", "user-2"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ghost", result.Errors[0].UserID)
}

func TestSendUnknownTypeRejected(t *testing.T) {
	svc, _, _ := newFanoutFixture(t)

	_, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant,
		TypeName: "nope",
		UserIDs:  []string{"user-1"},
	})
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestSendBatchedConvergesOnOneBatch(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{
		Name:                 "digest.activity",
		DefaultFrequency:     model.FrequencyBatched,
		DefaultBatchInterval: model.BatchInterval{Kind: model.BatchMinutes, Every: 15},
	})

	base := time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	first, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant, TypeName: "digest.activity", UserIDs: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	svc.now = func() time.Time { return base.Add(11 * time.Minute) } // 10:12
	second, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant, TypeName: "digest.activity", UserIDs: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, second.Created, 1)

	n1 := factory.store.notifications[first.Created[0]]
	n2 := factory.store.notifications[second.Created[0]]
	assert.Equal(t, model.StatusBatched, n1.Status)
	assert.Equal(t, n1.BatchID, n2.BatchID)
	require.Len(t, factory.store.batches, 1)

	batch := factory.store.batches[n1.BatchID]
	expected := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	assert.True(t, batch.ScheduledFor.Equal(expected), "scheduled for %s", batch.ScheduledFor)
}

func TestSendBatchedHonorsPreferenceTimezone(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	nt := seedType(t, factory, &model.NotificationType{
		Name:                 "digest.activity",
		DefaultFrequency:     model.FrequencyBatched,
		DefaultBatchInterval: model.BatchInterval{Kind: model.BatchEndOfDay},
	})

	store, err := factory.ForTenant(testTenant)
	require.NoError(t, err)
	require.NoError(t, store.Preferences().Upsert(context.Background(), &model.UserNotificationPreference{
		ID:       "pref-1",
		UserID:   "user-1",
		TypeID:   nt.ID,
		Enabled:  true,
		Timezone: "America/New_York",
	}))

	// 02:00 UTC on Mar 3 is still the evening of Mar 2 in New York; the
	// preference timezone wins over the resolver's UTC.
	svc.now = func() time.Time { return time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC) }
	result, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant, TypeName: "digest.activity", UserIDs: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	n := factory.store.notifications[result.Created[0]]
	batch := factory.store.batches[n.BatchID]
	local := batch.ScheduledFor.In(ny)
	assert.Equal(t, 2, local.Day())
	assert.Equal(t, 23, local.Hour())
	assert.Equal(t, 59, local.Minute())
}

func TestSendDefersIntoQuietHoursEnd(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	nt := seedType(t, factory, &model.NotificationType{Name: "deal.won"})

	store, err := factory.ForTenant(testTenant)
	require.NoError(t, err)
	require.NoError(t, store.Preferences().Upsert(context.Background(), &model.UserNotificationPreference{
		ID:         "pref-1",
		UserID:     "user-1",
		TypeID:     nt.ID,
		Enabled:    true,
		QuietHours: &model.QuietHours{Start: "22:00", End: "06:00", Timezone: "UTC"},
	}))

	svc.now = func() time.Time { return time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC) }
	result, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant, TypeName: "deal.won", UserIDs: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	n := factory.store.notifications[result.Created[0]]
	require.NotNil(t, n.ScheduledFor)
	assert.Equal(t, time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC), n.ScheduledFor.UTC())
}

func TestSendExpiryFromTypeDefault(t *testing.T) {
	svc, factory, _ := newFanoutFixture(t)
	seedType(t, factory, &model.NotificationType{Name: "deal.won", DefaultExpiresAfterHour: 48})

	base := time.Now()
	svc.now = func() time.Time { return base }
	result, err := svc.Send(context.Background(), SendRequest{
		TenantID: testTenant, TypeName: "deal.won", UserIDs: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	n := factory.store.notifications[result.Created[0]]
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, base.Add(48*time.Hour), *n.ExpiresAt)
}
