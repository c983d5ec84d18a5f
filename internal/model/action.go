package model

import "time"

type ActionStatus string

const (
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
	ActionPartial   ActionStatus = "partial"
)

// NotificationAction is the audit and idempotency record of one action
// execution. At most one completed action may exist per
// (notification, action type).
type NotificationAction struct {
	ID             string
	TenantID       string
	NotificationID string
	UserID         string
	ActionType     string
	Status         ActionStatus
	ActionData     map[string]any
	Result         map[string]any
	Error          string
	BatchActionID  string
	ExecutedAt     time.Time
}

// NotificationBatchAction is the umbrella record of one action executed
// across a list of notifications.
type NotificationBatchAction struct {
	ID              string
	TenantID        string
	UserID          string
	ActionType      string
	Status          ActionStatus
	NotificationIDs []string
	SucceededCount  int
	FailedCount     int
	ExecutedAt      time.Time
}
