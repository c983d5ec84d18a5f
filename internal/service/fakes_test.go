package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"notification-engine/internal/channel"
	"notification-engine/internal/model"
	"notification-engine/internal/provider"
	"notification-engine/internal/repository"
)

// memStore is an in-memory repository.Store used by the service tests.
type memStore struct {
	mu            sync.Mutex
	tenant        string
	notifications map[string]*model.Notification
	types         map[string]*model.NotificationType
	preferences   map[string]*model.UserNotificationPreference
	batches       map[string]*model.NotificationBatch
	actions       map[string]*model.NotificationAction
	batchActions  map[string]*model.NotificationBatchAction
	addresses     map[string]*model.ChannelAddress
}

func newMemStore(tenant string) *memStore {
	return &memStore{
		tenant:        tenant,
		notifications: make(map[string]*model.Notification),
		types:         make(map[string]*model.NotificationType),
		preferences:   make(map[string]*model.UserNotificationPreference),
		batches:       make(map[string]*model.NotificationBatch),
		actions:       make(map[string]*model.NotificationAction),
		batchActions:  make(map[string]*model.NotificationBatchAction),
		addresses:     make(map[string]*model.ChannelAddress),
	}
}

type memFactory struct {
	store *memStore
}

func newMemFactory(tenant string) *memFactory {
	return &memFactory{store: newMemStore(tenant)}
}

func (f *memFactory) ForTenant(tenant string) (repository.Store, error) {
	if tenant == "" {
		return nil, fmt.Errorf("store requires a tenant")
	}
	return f.store, nil
}

func (s *memStore) Tenant() string                               { return s.tenant }
func (s *memStore) Notifications() repository.NotificationRepository { return (*memNotificationRepo)(s) }
func (s *memStore) Types() repository.NotificationTypeRepository { return (*memTypeRepo)(s) }
func (s *memStore) Preferences() repository.PreferenceRepository { return (*memPreferenceRepo)(s) }
func (s *memStore) Batches() repository.BatchRepository          { return (*memBatchRepo)(s) }
func (s *memStore) Actions() repository.ActionRepository         { return (*memActionRepo)(s) }
func (s *memStore) Addresses() repository.ChannelAddressRepository { return (*memAddressRepo)(s) }

type memNotificationRepo memStore

func (r *memNotificationRepo) Insert(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.IdempotencyKey != "" {
		for _, existing := range r.notifications {
			if existing.IdempotencyKey == n.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	copied := *n
	r.notifications[n.ID] = &copied
	return nil
}

func (r *memNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *memNotificationRepo) FindByIdempotencyKey(_ context.Context, key string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.IdempotencyKey == key {
			copied := *n
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memNotificationRepo) FindByEventKey(_ context.Context, userID, typeID, eventKey string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Notification
	for _, n := range r.notifications {
		if n.UserID == userID && n.TypeID == typeID && n.EventKey == eventKey {
			if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
				latest = n
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *memNotificationRepo) Overwrite(_ context.Context, id string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Metadata = metadata
	n.EventVersion++
	n.UpdatedAt = time.Now()
	return nil
}

func (r *memNotificationRepo) UpdateStatus(_ context.Context, id string, status model.NotificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Status = status
	return nil
}

func (r *memNotificationRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Status = model.StatusSent
	n.SentAt = &at
	return nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Status = model.StatusRead
	n.ReadAt = &at
	return nil
}

func (r *memNotificationRepo) AppendAttempt(_ context.Context, id string, attempt model.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.Attempts = append(n.Attempts, attempt)
	return nil
}

func (r *memNotificationRepo) FindByBatch(_ context.Context, batchID string) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Notification
	for _, n := range r.notifications {
		if n.BatchID == batchID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memNotificationRepo) SetStatusForBatch(_ context.Context, batchID string, from, to model.NotificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.BatchID == batchID && n.Status == from {
			n.Status = to
		}
	}
	return nil
}

func (r *memNotificationRepo) FindDuePending(_ context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Notification
	for _, n := range r.notifications {
		if n.Status != model.StatusPending {
			continue
		}
		if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
			continue
		}
		copied := *n
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memTypeRepo memStore

func (r *memTypeRepo) Insert(_ context.Context, t *model.NotificationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.types[t.ID] = &copied
	return nil
}

func (r *memTypeRepo) Update(_ context.Context, t *model.NotificationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *t
	r.types[t.ID] = &copied
	return nil
}

func (r *memTypeRepo) GetByID(_ context.Context, id string) (*model.NotificationType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memTypeRepo) GetByName(_ context.Context, name string) (*model.NotificationType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t.Name == name {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTypeRepo) List(_ context.Context) ([]*model.NotificationType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NotificationType
	for _, t := range r.types {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memTypeRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.IsActive = active
	return nil
}

type memPreferenceRepo memStore

func prefKey(userID, typeID string) string { return userID + "|" + typeID }

func (r *memPreferenceRepo) Get(_ context.Context, userID, typeID string) (*model.UserNotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.preferences[prefKey(userID, typeID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memPreferenceRepo) Upsert(_ context.Context, p *model.UserNotificationPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.preferences[prefKey(p.UserID, p.TypeID)] = &copied
	return nil
}

func (r *memPreferenceRepo) ListForUser(_ context.Context, userID string) ([]*model.UserNotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.UserNotificationPreference
	for _, p := range r.preferences {
		if p.UserID == userID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memBatchRepo memStore

func (r *memBatchRepo) Insert(_ context.Context, b *model.NotificationBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.batches[b.ID] = &copied
	return nil
}

func (r *memBatchRepo) GetByID(_ context.Context, id string) (*model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memBatchRepo) FindOpen(_ context.Context, userID, typeID, channelName string, notBefore time.Time) (*model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.UserID == userID && b.TypeID == typeID && b.Channel == channelName &&
			b.Status == model.BatchPending && !b.ScheduledFor.Before(notBefore) {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memBatchRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NotificationBatch
	for _, b := range r.batches {
		if b.Status == model.BatchPending && !b.ScheduledFor.After(now) {
			copied := *b
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memBatchRepo) ClaimProcessing(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if b.Status != model.BatchPending {
		return false, nil
	}
	b.Status = model.BatchProcessing
	return true, nil
}

func (r *memBatchRepo) UpdateStatus(_ context.Context, id string, status model.BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r *memBatchRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = model.BatchSent
	b.SentAt = &at
	return nil
}

func (r *memBatchRepo) SetAggregatedContent(_ context.Context, id string, content *model.AggregatedContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.AggregatedContent = content
	return nil
}

func (r *memBatchRepo) AppendAttempt(_ context.Context, id string, attempt model.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Attempts = append(b.Attempts, attempt)
	return nil
}

type memActionRepo memStore

func (r *memActionRepo) Insert(_ context.Context, a *model.NotificationAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.actions[a.ID] = &copied
	return nil
}

func (r *memActionRepo) HasCompleted(_ context.Context, notificationID, actionType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a.NotificationID == notificationID && a.ActionType == actionType && a.Status == model.ActionCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memActionRepo) ListForNotification(_ context.Context, notificationID string) ([]*model.NotificationAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NotificationAction
	for _, a := range r.actions {
		if a.NotificationID == notificationID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memActionRepo) InsertBatchAction(_ context.Context, b *model.NotificationBatchAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.batchActions[b.ID] = &copied
	return nil
}

func (r *memActionRepo) UpdateBatchAction(_ context.Context, b *model.NotificationBatchAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batchActions[b.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *b
	r.batchActions[b.ID] = &copied
	return nil
}

type memAddressRepo memStore

func addrKey(userID, channelName string) string { return userID + "|" + channelName }

func (r *memAddressRepo) Get(_ context.Context, userID, channelName string) (*model.ChannelAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addrKey(userID, channelName)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memAddressRepo) Upsert(_ context.Context, a *model.ChannelAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.addresses[addrKey(a.UserID, a.Channel)] = &copied
	return nil
}

func (r *memAddressRepo) RecordBounce(_ context.Context, userID, channelName string, disableAt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addrKey(userID, channelName)]
	if !ok {
		return repository.ErrNotFound
	}
	a.BounceCount++
	if a.BounceCount >= disableAt {
		a.Disabled = true
	}
	return nil
}

// fakeUsers is a canned provider.UserResolver.
type fakeUsers struct {
	users       map[string]*provider.User
	subscribers []string
	denyPerms   map[string]bool
	failConds   bool
	tenantDown  bool
}

func newFakeUsers(users ...*provider.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*provider.User), denyPerms: make(map[string]bool)}
	for _, u := range users {
		f.users[u.ID] = u
		f.subscribers = append(f.subscribers, u.ID)
	}
	return f
}

func (f *fakeUsers) GetUser(_ context.Context, _, userID string) (*provider.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (f *fakeUsers) UserExists(_ context.Context, _, userID string) (bool, error) {
	_, ok := f.users[userID]
	return ok, nil
}

func (f *fakeUsers) TenantActive(_ context.Context, _ string) (bool, error) {
	return !f.tenantDown, nil
}

func (f *fakeUsers) GetSubscribers(_ context.Context, _, _ string) ([]string, error) {
	return f.subscribers, nil
}

func (f *fakeUsers) GetUserTimezone(_ context.Context, _, userID string) (string, error) {
	if u, ok := f.users[userID]; ok {
		return u.Timezone, nil
	}
	return "", nil
}

func (f *fakeUsers) GetUserLocale(_ context.Context, _, userID string) (string, error) {
	if u, ok := f.users[userID]; ok {
		return u.Locale, nil
	}
	return "", nil
}

func (f *fakeUsers) UserHasPermission(_ context.Context, _, _, permission string) (bool, error) {
	return !f.denyPerms[permission], nil
}

func (f *fakeUsers) UserMatchesConditions(_ context.Context, _, _ string, _ []provider.Condition) (bool, error) {
	return !f.failConds, nil
}

func (f *fakeUsers) CreateDataAccessChecker(_ context.Context, _, _ string) (provider.DataAccessChecker, error) {
	return func(_, _ string) bool { return true }, nil
}

func (f *fakeUsers) GetUserChannelAddress(_ context.Context, _, _, _ string) (string, error) {
	return "user@example.com", nil
}

// fakeTemplates is a canned provider.TemplateProvider. With no template set
// it reports no template, pushing delivery onto the synthesize path.
type fakeTemplates struct {
	template *provider.Template
	result   provider.RenderResult
	renders  int
}

func (f *fakeTemplates) GetTemplate(_ context.Context, _, _, _ string) (*provider.Template, error) {
	return f.template, nil
}

func (f *fakeTemplates) GetFallbackTemplate(_ context.Context, _ string) (*provider.Template, error) {
	return nil, nil
}

func (f *fakeTemplates) TemplateExists(_ context.Context, _, _ string) (bool, error) {
	return f.template != nil, nil
}

func (f *fakeTemplates) RenderTemplate(_ context.Context, _ *provider.Template, _ map[string]any, _ provider.RenderOptions) (provider.RenderResult, error) {
	f.renders++
	return f.result, nil
}

// fakeChannel records sends and fails the first failures calls. Safe for
// concurrent use; group delivery sends from multiple goroutines.
type fakeChannel struct {
	mu       sync.Mutex
	name     string
	failures int
	sends    []*model.Notification
}

func (c *fakeChannel) Name() string                  { return c.name }
func (c *fakeChannel) ValidateAddress(a string) bool { return a != "" }

func (c *fakeChannel) Send(_ context.Context, n *model.Notification, _ channel.RenderedContent, _ provider.UserResolver) (channel.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, n)
	if c.failures > 0 {
		c.failures--
		return channel.SendResult{Success: false, Error: "provider unavailable"}, nil
	}
	return channel.SendResult{Success: true, MessageID: "msg-1"}, nil
}

// fakeOutbox records inserted events.
type fakeOutbox struct {
	events []string
}

func (f *fakeOutbox) Insert(_ context.Context, _, _, routingKey string, _ any) error {
	f.events = append(f.events, routingKey)
	return nil
}

// memUsedStore is an in-memory token.UsedStore.
type memUsedStore struct {
	mu   sync.Mutex
	used map[string]bool
}

func newMemUsedStore() *memUsedStore {
	return &memUsedStore{used: make(map[string]bool)}
}

func (s *memUsedStore) IsUsed(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[tokenID], nil
}

func (s *memUsedStore) MarkUsed(_ context.Context, tokenID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[tokenID] = true
	return nil
}
