// Package mq defines the event payloads exchanged over the message broker.
package mq

import "time"

// Routing keys on the notifications exchange.
const (
	RoutingNotificationRequested = "notification.requested"
	RoutingNotificationSent      = "notification.sent"
	RoutingNotificationFailed    = "notification.failed"
	RoutingBatchSent             = "batch.sent"
)

// NotificationRequestedPayload is the inbound event asking the engine to
// fan out one logical notification.
type NotificationRequestedPayload struct {
	TenantID       string         `json:"tenant_id"`
	TypeName       string         `json:"type_name"`
	Data           map[string]any `json:"data"`
	UserIDs        []string       `json:"user_ids,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	EventKey       string         `json:"event_key,omitempty"`
	Priority       string         `json:"priority,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Locale         string         `json:"locale,omitempty"`
}

// NotificationSentPayload announces a successful delivery.
type NotificationSentPayload struct {
	NotificationID string    `json:"notification_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sent_at"`
}

// NotificationFailedPayload announces a terminally failed delivery.
type NotificationFailedPayload struct {
	NotificationID string `json:"notification_id"`
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	Error          string `json:"error"`
	Attempts       int    `json:"attempts"`
}

// BatchSentPayload announces a delivered digest.
type BatchSentPayload struct {
	BatchID  string    `json:"batch_id"`
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id"`
	Channel  string    `json:"channel"`
	Count    int       `json:"count"`
	SentAt   time.Time `json:"sent_at"`
}
