package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-engine/internal/model"
	"notification-engine/internal/service"
)

type TypeHandler struct {
	types *service.TypeService
}

func NewTypeHandler(types *service.TypeService) *TypeHandler {
	return &TypeHandler{types: types}
}

type typeRequest struct {
	Name                    string                        `json:"name" binding:"required"`
	Category                string                        `json:"category"`
	DefaultChannels         []string                      `json:"default_channels"`
	DefaultFrequency        string                        `json:"default_frequency"`
	DefaultBatchInterval    model.BatchInterval           `json:"default_batch_interval"`
	RequiredPermission      string                        `json:"required_permission"`
	AutoSubscribe           bool                          `json:"auto_subscribe"`
	SubscriptionConditions  []model.SubscriptionCondition `json:"subscription_conditions"`
	RequiresAction          bool                          `json:"requires_action"`
	DefaultExpiresAfterHour int                           `json:"default_expires_after_hours"`
	DefaultPriority         string                        `json:"default_priority"`
	Templates               map[string]string             `json:"templates"`
	DedupPolicy             model.DedupPolicy             `json:"dedup_policy"`
}

func (r typeRequest) toModel() *model.NotificationType {
	return &model.NotificationType{
		Name:                    r.Name,
		Category:                r.Category,
		DefaultChannels:         r.DefaultChannels,
		DefaultFrequency:        model.Frequency(r.DefaultFrequency),
		DefaultBatchInterval:    r.DefaultBatchInterval,
		RequiredPermission:      r.RequiredPermission,
		AutoSubscribe:           r.AutoSubscribe,
		SubscriptionConditions:  r.SubscriptionConditions,
		RequiresAction:          r.RequiresAction,
		DefaultExpiresAfterHour: r.DefaultExpiresAfterHour,
		DefaultPriority:         model.Priority(r.DefaultPriority),
		Templates:               r.Templates,
		DedupPolicy:             r.DedupPolicy,
	}
}

// Create handles POST /types
func (h *TypeHandler) Create(c *gin.Context) {
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	t, err := h.types.Create(c.Request.Context(), tenantID, req.toModel())
	if err != nil {
		if errors.Is(err, service.ErrTypeNameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "notification type name already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification type"})
		return
	}
	c.JSON(http.StatusCreated, t)
}

// Update handles PUT /types/:id
func (h *TypeHandler) Update(c *gin.Context) {
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	t := req.toModel()
	t.ID = c.Param("id")
	if err := h.types.Update(c.Request.Context(), tenantID, t); err != nil {
		switch {
		case errors.Is(err, service.ErrTypeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification type not found"})
		case errors.Is(err, service.ErrTypeNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "notification type name already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification type"})
		}
		return
	}
	c.JSON(http.StatusOK, t)
}

// List handles GET /types
func (h *TypeHandler) List(c *gin.Context) {
	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	types, err := h.types.List(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notification types"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

// SetActive handles POST /types/:id/active
func (h *TypeHandler) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	if err := h.types.SetActive(c.Request.Context(), tenantID, c.Param("id"), *req.Active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change active flag"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}
