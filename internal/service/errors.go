// Package service implements the notification engine: fan-out, delivery,
// batching, preferences and actions.
package service

import "errors"

// Configuration errors: deploy-time problems, failed fast and never retried.
var (
	ErrTypeNotFound         = errors.New("notification type not found")
	ErrChannelNotRegistered = errors.New("channel not registered")
)

// Precondition errors: rejected synchronously at the API boundary.
var (
	ErrTypeInactive         = errors.New("notification type is inactive")
	ErrTypeNameTaken        = errors.New("notification type name already in use")
	ErrPermissionDenied     = errors.New("user lacks required permission")
	ErrConditionNotMet      = errors.New("user does not satisfy subscription conditions")
	ErrUserNotEligible      = errors.New("user missing, inactive or tenant mismatched")
	ErrAlreadyActioned      = errors.New("action already completed for this notification")
	ErrNotificationNotFound = errors.New("notification not found")
)
