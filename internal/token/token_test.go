package token

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsedStore struct {
	mu   sync.Mutex
	used map[string]bool
}

func newMemUsedStore() *memUsedStore {
	return &memUsedStore{used: make(map[string]bool)}
}

func (m *memUsedStore) IsUsed(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[tokenID], nil
}

func (m *memUsedStore) MarkUsed(_ context.Context, tokenID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used[tokenID] = true
	return nil
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, used UsedStore) *Service {
	t.Helper()
	svc, err := NewService(testSecret, time.Hour, used)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService([]byte("too-short"), time.Hour, nil)
	assert.Error(t, err)
}

func TestGenerateValidateRoundTrip(t *testing.T) {
	svc := newTestService(t, nil)

	tok, err := svc.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	p, err := svc.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", p.TenantID)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "n-1", p.NotificationID)
	assert.Equal(t, "approve", p.ActionType)
	assert.NotEmpty(t, p.TokenID)
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	svc := newTestService(t, nil)

	tok, err := svc.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	// Flip one character of the payload half without touching the signature.
	tampered := []byte(tok)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	_, err = svc.Validate(context.Background(), string(tampered))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t, nil)
	other, err := NewService([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, nil)
	require.NoError(t, err)

	tok, err := other.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateMalformed(t *testing.T) {
	svc := newTestService(t, nil)

	for _, tok := range []string{"", "no-separator", ".sig-only", "body-only.", "a.b.c"} {
		_, err := svc.Validate(context.Background(), tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestValidateExpired(t *testing.T) {
	svc := newTestService(t, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	tok, err := svc.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2026, 3, 2, 11, 0, 1, 0, time.UTC) }
	_, err = svc.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestConsumeBlocksReplay(t *testing.T) {
	used := newMemUsedStore()
	svc := newTestService(t, used)

	tok, err := svc.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	p, err := svc.Validate(context.Background(), tok)
	require.NoError(t, err)
	require.NoError(t, svc.Consume(context.Background(), p))

	_, err = svc.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestTokenIsURLSafe(t *testing.T) {
	svc := newTestService(t, nil)

	tok, err := svc.Generate("tenant-1", "user-1", "n-1", "approve")
	require.NoError(t, err)

	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	assert.NotContains(t, tok, "=")
	assert.Equal(t, 2, len(strings.Split(tok, separator)))
}
