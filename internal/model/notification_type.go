package model

import "time"

type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyBatched   Frequency = "batched"
)

type DedupStrategy string

const (
	DedupIgnore    DedupStrategy = "ignore"
	DedupOverwrite DedupStrategy = "overwrite"
	DedupCreateNew DedupStrategy = "create_new"
)

// DedupPolicy controls how a send request with a repeated event key is
// reconciled against an existing notification.
type DedupPolicy struct {
	Strategy            DedupStrategy `json:"strategy"`
	EventKeyFields      []string      `json:"event_key_fields"`
	UpdateWindowMinutes int           `json:"update_window_minutes"`
}

// Enabled reports whether dedup applies at all for this type.
func (p DedupPolicy) Enabled() bool {
	return p.Strategy != "" && p.Strategy != DedupCreateNew && len(p.EventKeyFields) > 0
}

type BatchIntervalKind string

const (
	BatchImmediate BatchIntervalKind = "immediate"
	BatchMinutes   BatchIntervalKind = "minutes"
	BatchHours     BatchIntervalKind = "hours"
	BatchEndOfDay  BatchIntervalKind = "end_of_day"
	BatchCustom    BatchIntervalKind = "custom"
)

// BatchInterval is a batching policy: how far into the future a batched
// notification is scheduled.
type BatchInterval struct {
	Kind  BatchIntervalKind `json:"kind"`
	Every int               `json:"every,omitempty"` // for minutes / hours
	At    *time.Time        `json:"at,omitempty"`    // for custom
}

// SubscriptionCondition is one structured precondition a user must satisfy
// before subscribing to a type (evaluated through the user resolver).
type SubscriptionCondition struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// NotificationType is a tenant-scoped catalog entry describing one kind of
// notification and its defaults. Never hard-deleted while notifications
// reference it; disabled via IsActive instead.
type NotificationType struct {
	ID                      string
	TenantID                string
	Name                    string
	Category                string
	DefaultChannels         []string
	DefaultFrequency        Frequency
	DefaultBatchInterval    BatchInterval
	RequiredPermission      string
	AutoSubscribe           bool
	SubscriptionConditions  []SubscriptionCondition
	RequiresAction          bool
	DefaultExpiresAfterHour int
	DefaultPriority         Priority
	Templates               map[string]string // channel -> template id
	DedupPolicy             DedupPolicy
	IsActive                bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
