package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notification-engine/internal/model"
	"notification-engine/internal/service"
)

type NotificationHandler struct {
	fanout  *service.FanoutService
	actions *service.ActionService
}

func NewNotificationHandler(fanout *service.FanoutService, actions *service.ActionService) *NotificationHandler {
	return &NotificationHandler{fanout: fanout, actions: actions}
}

// Send handles POST /notifications/send
func (h *NotificationHandler) Send(c *gin.Context) {
	var req struct {
		TypeName       string         `json:"notification_type" binding:"required"`
		Data           map[string]any `json:"data"`
		UserIDs        []string       `json:"user_ids"`
		IdempotencyKey string         `json:"idempotency_key"`
		EventKey       string         `json:"event_key"`
		Priority       string         `json:"priority"`
		ExpiresAt      *time.Time     `json:"expires_at"`
		Locale         string         `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	result, err := h.fanout.Send(c.Request.Context(), service.SendRequest{
		TenantID:       tenantID,
		TypeName:       req.TypeName,
		Data:           req.Data,
		UserIDs:        req.UserIDs,
		IdempotencyKey: req.IdempotencyKey,
		EventKey:       req.EventKey,
		Priority:       model.Priority(req.Priority),
		ExpiresAt:      req.ExpiresAt,
		Locale:         req.Locale,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTypeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification type not found"})
		case errors.Is(err, service.ErrTypeInactive):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "notification type is inactive"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	err := h.actions.MarkRead(c.Request.Context(), tenantID, userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
