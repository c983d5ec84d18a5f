package model

import "time"

type BatchStatus string

const (
	BatchPending       BatchStatus = "pending"
	BatchProcessing    BatchStatus = "processing"
	BatchSent          BatchStatus = "sent"
	BatchFailed        BatchStatus = "failed"
	BatchPartiallySent BatchStatus = "partially_sent"
	BatchCancelled     BatchStatus = "cancelled"
)

// AggregatedItem is one constituent notification's contribution to a digest.
type AggregatedItem struct {
	NotificationID string         `json:"notification_id"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AggregatedContent is the computed digest payload for a batch.
type AggregatedContent struct {
	Title string           `json:"title"`
	Count int              `json:"count"`
	Items []AggregatedItem `json:"items"`
}

// NotificationBatch groups notifications scheduled together for one
// (user, type, channel) digest. All notifications referencing a batch share
// that key.
type NotificationBatch struct {
	ID                string
	TenantID          string
	UserID            string
	TypeID            string
	Channel           string
	Interval          BatchInterval
	Status            BatchStatus
	ScheduledFor      time.Time
	SentAt            *time.Time
	AggregatedContent *AggregatedContent
	Attempts          []DeliveryAttempt
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FailedAttempts counts the recorded unsuccessful digest delivery attempts.
func (b *NotificationBatch) FailedAttempts() int {
	count := 0
	for _, a := range b.Attempts {
		if !a.Success {
			count++
		}
	}
	return count
}
