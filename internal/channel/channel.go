// Package channel defines the uniform contract delivery media implement and
// the registry that resolves them by name.
package channel

import (
	"context"

	"notification-engine/internal/model"
	"notification-engine/internal/provider"
)

// Common channel names. Adapters for additional media register under their
// own names; the engine never enumerates this set.
const (
	Email = "email"
	Chat  = "chat"
	SMS   = "sms"
	Push  = "push"
)

// RenderedContent is what a template render produced for one send.
type RenderedContent struct {
	Subject string
	Text    string
	HTML    string
}

// SendResult is the outcome of one adapter invocation.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Channel is the capability contract one delivery medium implements.
// Adapters are expected to enforce their own I/O timeouts.
type Channel interface {
	Name() string
	ValidateAddress(address string) bool
	Send(ctx context.Context, n *model.Notification, content RenderedContent, users provider.UserResolver) (SendResult, error)
}
