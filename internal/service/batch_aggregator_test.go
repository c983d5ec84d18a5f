package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-engine/internal/channel"
	"notification-engine/internal/model"
	"notification-engine/internal/provider"
)

type aggregatorFixture struct {
	agg     *BatchAggregator
	factory *memFactory
	email   *fakeChannel
	outbox  *fakeOutbox
}

func newAggregatorFixture(t *testing.T) *aggregatorFixture {
	t.Helper()
	factory := newMemFactory(testTenant)
	email := &fakeChannel{name: "email"}
	registry, err := channel.NewRegistry(email)
	require.NoError(t, err)

	users := newFakeUsers(&provider.User{ID: "user-1", TenantID: testTenant, Active: true})
	ob := &fakeOutbox{}
	delivery := NewDeliveryService(factory, registry, &fakeTemplates{}, users, ob, zap.NewNop())

	return &aggregatorFixture{
		agg:     NewBatchAggregator(factory, delivery, ob, zap.NewNop()),
		factory: factory,
		email:   email,
		outbox:  ob,
	}
}

func (f *aggregatorFixture) seedBatch(t *testing.T, titles ...string) *model.NotificationBatch {
	t.Helper()
	store, err := f.factory.ForTenant(testTenant)
	require.NoError(t, err)

	batch := &model.NotificationBatch{
		ID:           "batch-1",
		TenantID:     testTenant,
		UserID:       "user-1",
		TypeID:       "type-digest",
		Channel:      "email",
		Status:       model.BatchPending,
		ScheduledFor: time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Batches().Insert(context.Background(), batch))

	for i, title := range titles {
		require.NoError(t, store.Notifications().Insert(context.Background(), &model.Notification{
			ID:        "n-" + title,
			TenantID:  testTenant,
			UserID:    "user-1",
			TypeID:    "type-digest",
			TypeName:  "digest.activity",
			Channel:   "email",
			Title:     title,
			Status:    model.StatusBatched,
			BatchID:   batch.ID,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	return batch
}

func TestFlushSendsOneDigestForAllConstituents(t *testing.T) {
	f := newAggregatorFixture(t)
	batch := f.seedBatch(t, "one", "two", "three")

	require.NoError(t, f.agg.Flush(context.Background(), testTenant, batch.ID))

	require.Len(t, f.email.sends, 1)
	got := f.factory.store.batches[batch.ID]
	assert.Equal(t, model.BatchSent, got.Status)
	require.NotNil(t, got.AggregatedContent)
	assert.Equal(t, 3, got.AggregatedContent.Count)
	assert.Equal(t, []string{"one", "two", "three"}, []string{
		got.AggregatedContent.Items[0].Title,
		got.AggregatedContent.Items[1].Title,
		got.AggregatedContent.Items[2].Title,
	})

	for _, n := range f.factory.store.notifications {
		assert.Equal(t, model.StatusSent, n.Status)
	}
	assert.Contains(t, f.outbox.events, "batch.sent")
}

func TestFlushFailureKeepsBatchRetryable(t *testing.T) {
	f := newAggregatorFixture(t)
	f.email.failures = 1
	batch := f.seedBatch(t, "one", "two")

	err := f.agg.Flush(context.Background(), testTenant, batch.ID)
	require.Error(t, err)

	// The failed batch stays pending with its attempt recorded, so the next
	// sweep picks it up again.
	got := f.factory.store.batches[batch.ID]
	assert.Equal(t, model.BatchPending, got.Status)
	require.Len(t, got.Attempts, 1)
	assert.False(t, got.Attempts[0].Success)
	for _, n := range f.factory.store.notifications {
		assert.Equal(t, model.StatusBatched, n.Status)
	}

	due, err := f.factory.store.Batches().FindDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, batch.ID, due[0].ID)

	// Channel recovered: the retry delivers the digest and fans the status
	// back onto the constituents.
	require.NoError(t, f.agg.Flush(context.Background(), testTenant, batch.ID))
	assert.Equal(t, model.BatchSent, f.factory.store.batches[batch.ID].Status)
	for _, n := range f.factory.store.notifications {
		assert.Equal(t, model.StatusSent, n.Status)
	}
}

func TestFlushFailsTerminallyAtAttemptCeiling(t *testing.T) {
	f := newAggregatorFixture(t)
	f.email.failures = 10
	batch := f.seedBatch(t, "one", "two")

	for i := 0; i < MaxDeliveryAttempts; i++ {
		require.Error(t, f.agg.Flush(context.Background(), testTenant, batch.ID))
	}

	got := f.factory.store.batches[batch.ID]
	assert.Equal(t, model.BatchFailed, got.Status)
	require.Len(t, got.Attempts, MaxDeliveryAttempts)
	for _, n := range f.factory.store.notifications {
		assert.Equal(t, model.StatusFailed, n.Status)
	}

	due, err := f.factory.store.Batches().FindDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// A stray re-flush of the terminal batch is a no-op.
	require.NoError(t, f.agg.Flush(context.Background(), testTenant, batch.ID))
	assert.Len(t, f.email.sends, MaxDeliveryAttempts)
}

func TestFlushLostClaimIsNoOp(t *testing.T) {
	f := newAggregatorFixture(t)
	batch := f.seedBatch(t, "one")
	require.NoError(t, f.factory.store.Batches().UpdateStatus(context.Background(), batch.ID, model.BatchProcessing))

	require.NoError(t, f.agg.Flush(context.Background(), testTenant, batch.ID))
	assert.Empty(t, f.email.sends)
}

func TestFlushExpiredConstituentExcluded(t *testing.T) {
	f := newAggregatorFixture(t)
	batch := f.seedBatch(t, "fresh", "stale")

	past := time.Now().Add(-time.Hour)
	f.factory.store.notifications["n-stale"].ExpiresAt = &past

	require.NoError(t, f.agg.Flush(context.Background(), testTenant, batch.ID))

	assert.Equal(t, model.StatusExpired, f.factory.store.notifications["n-stale"].Status)
	assert.Equal(t, model.StatusSent, f.factory.store.notifications["n-fresh"].Status)
	assert.Equal(t, 1, f.factory.store.batches[batch.ID].AggregatedContent.Count)
}
