package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notification-engine/internal/model"
	"notification-engine/internal/repository"
)

// bounceDisableThreshold is how many bounces disable a channel address.
const bounceDisableThreshold = 3

// AddressHandler manages per-user channel destinations. Reads and writes go
// straight to the store; there is no business logic beyond the bounce
// threshold.
type AddressHandler struct {
	stores repository.StoreFactory
}

func NewAddressHandler(stores repository.StoreFactory) *AddressHandler {
	return &AddressHandler{stores: stores}
}

// Upsert handles PUT /addresses/:channel
func (h *AddressHandler) Upsert(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, tenantID, ok := callerIdentity(c)
	if !ok {
		return
	}

	store, err := h.stores.ForTenant(tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open store"})
		return
	}

	channelName := c.Param("channel")
	now := time.Now()
	addr := &model.ChannelAddress{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Channel:   channelName,
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Addresses().Upsert(c.Request.Context(), addr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": channelName, "address": req.Address})
}

// Bounce handles POST /webhooks/bounce, the delivery provider's bounce
// callback. Crossing the bounce threshold disables the address.
func (h *AddressHandler) Bounce(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id" binding:"required"`
		UserID   string `json:"user_id" binding:"required"`
		Channel  string `json:"channel" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	store, err := h.stores.ForTenant(req.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open store"})
		return
	}

	if err := store.Addresses().RecordBounce(c.Request.Context(), req.UserID, req.Channel, bounceDisableThreshold); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record bounce"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
