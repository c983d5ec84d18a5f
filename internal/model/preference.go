package model

import "time"

type SubscriptionSource string

const (
	SourceManual SubscriptionSource = "manual"
	SourceAuto   SubscriptionSource = "auto"
)

// QuietHours is a per-user local time window during which immediate delivery
// is suppressed. Start and End are HH:mm; a window with Start > End wraps
// past midnight.
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

func (q QuietHours) Configured() bool {
	return q.Start != "" && q.End != ""
}

// UserNotificationPreference is one row per (user, notification type),
// materialized lazily on first write or auto-subscription.
type UserNotificationPreference struct {
	ID            string
	TenantID      string
	UserID        string
	TypeID        string
	Enabled       bool
	Channels      []string
	Frequency     Frequency
	BatchInterval *BatchInterval
	QuietHours    *QuietHours
	Timezone      string
	Source        SubscriptionSource
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveChannels resolves the channel set, falling back to the type
// defaults when the preference does not pick its own.
func (p *UserNotificationPreference) EffectiveChannels(t *NotificationType) []string {
	if p != nil && len(p.Channels) > 0 {
		return p.Channels
	}
	return t.DefaultChannels
}

// EffectiveFrequency resolves the delivery frequency, preference override
// first, type default otherwise.
func (p *UserNotificationPreference) EffectiveFrequency(t *NotificationType) Frequency {
	if p != nil && p.Frequency != "" {
		return p.Frequency
	}
	return t.DefaultFrequency
}

// EffectiveBatchInterval resolves the batch interval policy.
func (p *UserNotificationPreference) EffectiveBatchInterval(t *NotificationType) BatchInterval {
	if p != nil && p.BatchInterval != nil {
		return *p.BatchInterval
	}
	return t.DefaultBatchInterval
}
