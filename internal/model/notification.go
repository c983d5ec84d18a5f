package model

import "time"

type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusBatched   NotificationStatus = "batched"
	StatusSent      NotificationStatus = "sent"
	StatusFailed    NotificationStatus = "failed"
	StatusExpired   NotificationStatus = "expired"
	StatusCancelled NotificationStatus = "cancelled"
	StatusSkipped   NotificationStatus = "skipped"
	StatusRead      NotificationStatus = "read"
)

// IsTerminal reports whether the status excludes the notification from
// any further sweep or delivery attempt.
func (s NotificationStatus) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusExpired, StatusCancelled, StatusSkipped, StatusRead:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeliveryAttempt is one entry of a notification's attempt history.
type DeliveryAttempt struct {
	Channel     string    `json:"channel"`
	AttemptedAt time.Time `json:"attempted_at"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
}

// Notification is the unit of delivery: one row per (user, channel) pair
// produced by fan-out. Title and Body may stay empty until render time.
type Notification struct {
	ID             string
	TenantID       string
	UserID         string
	TypeID         string
	TypeName       string
	Channel        string
	Title          string
	Body           string
	Metadata       map[string]any
	Status         NotificationStatus
	Priority       Priority
	Locale         string
	EventKey       string
	EventVersion   int
	IdempotencyKey string
	BatchID        string
	ScheduledFor   *time.Time
	ExpiresAt      *time.Time
	SentAt         *time.Time
	ReadAt         *time.Time
	Attempts       []DeliveryAttempt
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FailedAttempts counts the recorded unsuccessful delivery attempts.
func (n *Notification) FailedAttempts() int {
	count := 0
	for _, a := range n.Attempts {
		if !a.Success {
			count++
		}
	}
	return count
}

// Expired reports whether the notification's expiry has passed at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}
