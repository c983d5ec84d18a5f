package channel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notification-engine/internal/model"
	"notification-engine/internal/provider"
)

// LogChannel is a delivery adapter that writes sends to the log instead of
// an outbound provider. Used for local wiring and environments without real
// provider credentials; production deployments register provider-backed
// adapters under the same contract.
type LogChannel struct {
	name   string
	logger *zap.Logger
}

func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger}
}

func (c *LogChannel) Name() string {
	return c.name
}

func (c *LogChannel) ValidateAddress(address string) bool {
	return address != ""
}

func (c *LogChannel) Send(ctx context.Context, n *model.Notification, content RenderedContent, users provider.UserResolver) (SendResult, error) {
	address, err := users.GetUserChannelAddress(ctx, n.TenantID, n.UserID, c.name)
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}, nil
	}

	c.logger.Info("Delivering notification",
		zap.String("channel", c.name),
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("address", address),
		zap.String("subject", content.Subject),
	)

	return SendResult{
		Success:   true,
		MessageID: fmt.Sprintf("%s-%d", c.name, time.Now().UnixNano()),
	}, nil
}
