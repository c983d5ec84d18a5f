package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-engine/internal/service"
	"notification-engine/internal/token"
)

type ActionHandler struct {
	actions *service.ActionService
}

func NewActionHandler(actions *service.ActionService) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// ExecuteByToken handles GET /actions/token/:token, the unauthenticated
// one-click entry point reached from links embedded in outbound messages.
func (h *ActionHandler) ExecuteByToken(c *gin.Context) {
	action, err := h.actions.ExecuteByToken(c.Request.Context(), c.Param("token"), nil)
	if err != nil {
		status, reason := tokenErrorResponse(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      string(action.Status),
		"action_type": action.ActionType,
	})
}

// Execute handles POST /notifications/:id/actions
func (h *ActionHandler) Execute(c *gin.Context) {
	var req struct {
		ActionType string         `json:"action_type" binding:"required"`
		ActionData map[string]any `json:"action_data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	action, err := h.actions.Execute(c.Request.Context(), tenantID, userID, c.Param("id"), req.ActionType, req.ActionData)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotificationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, service.ErrAlreadyActioned):
			c.JSON(http.StatusConflict, gin.H{"error": "action already completed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to execute action"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"action_id": action.ID,
		"status":    string(action.Status),
		"result":    action.Result,
	})
}

// ExecuteBatch handles POST /actions/batch
func (h *ActionHandler) ExecuteBatch(c *gin.Context) {
	var req struct {
		ActionType      string         `json:"action_type" binding:"required"`
		NotificationIDs []string       `json:"notification_ids" binding:"required"`
		ActionData      map[string]any `json:"action_data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	batch, err := h.actions.ExecuteBatch(c.Request.Context(), tenantID, userID, req.ActionType, req.NotificationIDs, req.ActionData)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to execute batch action"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_action_id": batch.ID,
		"status":          string(batch.Status),
		"succeeded":       batch.SucceededCount,
		"failed":          batch.FailedCount,
	})
}

// List handles GET /notifications/:id/actions
func (h *ActionHandler) List(c *gin.Context) {
	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	actions, err := h.actions.ListForNotification(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list actions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// tokenErrorResponse maps each token failure mode to its own status and
// user-facing reason code.
func tokenErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrMalformed):
		return http.StatusBadRequest, "malformed"
	case errors.Is(err, token.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, token.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, token.ErrAlreadyUsed):
		return http.StatusConflict, "already_used"
	case errors.Is(err, service.ErrAlreadyActioned):
		return http.StatusConflict, "already_actioned"
	case errors.Is(err, service.ErrNotificationNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
