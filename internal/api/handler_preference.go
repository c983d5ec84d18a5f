package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-engine/internal/model"
	"notification-engine/internal/service"
)

type PreferenceHandler struct {
	preferences *service.PreferenceService
}

func NewPreferenceHandler(preferences *service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

// List handles GET /preferences
func (h *PreferenceHandler) List(c *gin.Context) {
	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	prefs, err := h.preferences.List(c.Request.Context(), tenantID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list preferences"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// Update handles PUT /preferences/:type_id
func (h *PreferenceHandler) Update(c *gin.Context) {
	var req struct {
		Enabled       bool                 `json:"enabled"`
		Channels      []string             `json:"channels"`
		Frequency     string               `json:"frequency"`
		BatchInterval *model.BatchInterval `json:"batch_interval"`
		QuietHours    *model.QuietHours    `json:"quiet_hours"`
		Timezone      string               `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	pref := &model.UserNotificationPreference{
		TypeID:        c.Param("type_id"),
		Enabled:       req.Enabled,
		Channels:      req.Channels,
		Frequency:     model.Frequency(req.Frequency),
		BatchInterval: req.BatchInterval,
		QuietHours:    req.QuietHours,
		Timezone:      req.Timezone,
	}
	if err := h.preferences.Update(c.Request.Context(), tenantID, userID, pref); err != nil {
		if errors.Is(err, service.ErrTypeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification type not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update preference"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

// Subscribe handles POST /preferences/:type_name/subscribe
func (h *PreferenceHandler) Subscribe(c *gin.Context) {
	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	pref, err := h.preferences.Subscribe(c.Request.Context(), tenantID, userID, c.Param("type_name"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTypeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification type not found"})
		case errors.Is(err, service.ErrTypeInactive):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "notification type is inactive"})
		case errors.Is(err, service.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "missing required permission"})
		case errors.Is(err, service.ErrConditionNotMet):
			c.JSON(http.StatusForbidden, gin.H{"error": "subscription conditions not met"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		}
		return
	}
	c.JSON(http.StatusOK, pref)
}

// Unsubscribe handles POST /preferences/:type_name/unsubscribe
func (h *PreferenceHandler) Unsubscribe(c *gin.Context) {
	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	if err := h.preferences.Unsubscribe(c.Request.Context(), tenantID, userID, c.Param("type_name")); err != nil {
		if errors.Is(err, service.ErrTypeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification type not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}
