package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/token"
)

func newActionFixture(t *testing.T) (*ActionService, *memFactory, *memUsedStore) {
	t.Helper()
	factory := newMemFactory(testTenant)
	used := newMemUsedStore()
	tokens, err := token.NewService([]byte("0123456789abcdef0123456789abcdef"), time.Hour, used)
	require.NoError(t, err)
	return NewActionService(factory, tokens, zap.NewNop()), factory, used
}

func seedNotification(t *testing.T, factory *memFactory, id string, status model.NotificationStatus) *model.Notification {
	t.Helper()
	store, err := factory.ForTenant(testTenant)
	require.NoError(t, err)
	n := &model.Notification{
		ID:       id,
		TenantID: testTenant,
		UserID:   "user-1",
		TypeID:   "type-1",
		Channel:  "email",
		Status:   status,
	}
	require.NoError(t, store.Notifications().Insert(context.Background(), n))
	return n
}

func TestExecuteRunsHandlerAtMostOnce(t *testing.T) {
	svc, factory, _ := newActionFixture(t)
	seedNotification(t, factory, "n-1", model.StatusSent)

	calls := 0
	require.NoError(t, svc.RegisterHandler("approve", func(_ context.Context, _ *model.Notification, _ map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{"approved": true}, nil
	}))

	action, err := svc.Execute(context.Background(), testTenant, "user-1", "n-1", "approve", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCompleted, action.Status)
	assert.Equal(t, map[string]any{"approved": true}, action.Result)

	_, err = svc.Execute(context.Background(), testTenant, "user-1", "n-1", "approve", nil)
	assert.ErrorIs(t, err, ErrAlreadyActioned)
	assert.Equal(t, 1, calls)
}

func TestExecuteUnregisteredHandlerIsAcknowledgment(t *testing.T) {
	svc, factory, _ := newActionFixture(t)
	seedNotification(t, factory, "n-1", model.StatusSent)

	action, err := svc.Execute(context.Background(), testTenant, "user-1", "n-1", "acknowledge", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCompleted, action.Status)
}

func TestExecuteFailedHandlerAllowsRetry(t *testing.T) {
	svc, factory, _ := newActionFixture(t)
	seedNotification(t, factory, "n-1", model.StatusSent)

	failures := 1
	require.NoError(t, svc.RegisterHandler("approve", func(_ context.Context, _ *model.Notification, _ map[string]any) (map[string]any, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("downstream unavailable")
		}
		return nil, nil
	}))

	action, err := svc.Execute(context.Background(), testTenant, "user-1", "n-1", "approve", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFailed, action.Status)

	action, err = svc.Execute(context.Background(), testTenant, "user-1", "n-1", "approve", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCompleted, action.Status)
}

func TestRegisterHandlerTwiceRejected(t *testing.T) {
	svc, _, _ := newActionFixture(t)
	handler := func(_ context.Context, _ *model.Notification, _ map[string]any) (map[string]any, error) {
		return nil, nil
	}
	require.NoError(t, svc.RegisterHandler("approve", handler))
	assert.Error(t, svc.RegisterHandler("approve", handler))
}

func TestExecuteByTokenConsumesOnlyOnSuccess(t *testing.T) {
	svc, factory, used := newActionFixture(t)
	seedNotification(t, factory, "n-1", model.StatusSent)

	failures := 1
	require.NoError(t, svc.RegisterHandler("approve", func(_ context.Context, _ *model.Notification, _ map[string]any) (map[string]any, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("downstream unavailable")
		}
		return nil, nil
	}))

	tok, err := svc.GenerateActionToken(testTenant, "user-1", "n-1", "approve")
	require.NoError(t, err)

	action, err := svc.ExecuteByToken(context.Background(), tok, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFailed, action.Status)
	assert.Empty(t, used.used)

	action, err = svc.ExecuteByToken(context.Background(), tok, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCompleted, action.Status)
	assert.Len(t, used.used, 1)

	_, err = svc.ExecuteByToken(context.Background(), tok, nil)
	assert.ErrorIs(t, err, token.ErrAlreadyUsed)
}

func TestExecuteBatchPartialStatus(t *testing.T) {
	svc, factory, _ := newActionFixture(t)
	seedNotification(t, factory, "n-ok", model.StatusSent)
	seedNotification(t, factory, "n-bad", model.StatusSent)

	require.NoError(t, svc.RegisterHandler("archive", func(_ context.Context, n *model.Notification, _ map[string]any) (map[string]any, error) {
		if n.ID == "n-bad" {
			return nil, errors.New("boom")
		}
		return nil, nil
	}))

	batch, err := svc.ExecuteBatch(context.Background(), testTenant, "user-1", "archive", []string{"n-ok", "n-bad"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionPartial, batch.Status)
	assert.Equal(t, 1, batch.SucceededCount)
	assert.Equal(t, 1, batch.FailedCount)

	// Every individual record carries the umbrella link.
	for _, a := range factory.store.actions {
		assert.Equal(t, batch.ID, a.BatchActionID)
	}
}

func TestMarkRead(t *testing.T) {
	svc, factory, _ := newActionFixture(t)
	seedNotification(t, factory, "n-1", model.StatusSent)

	require.NoError(t, svc.MarkRead(context.Background(), testTenant, "user-1", "n-1"))
	assert.Equal(t, model.StatusRead, factory.store.notifications["n-1"].Status)

	// Only the owner may mark it.
	err := svc.MarkRead(context.Background(), testTenant, "user-2", "n-1")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}
