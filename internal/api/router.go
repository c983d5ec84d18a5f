// Package api exposes the engine over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *NotificationHandler,
	preferenceHandler *PreferenceHandler,
	actionHandler *ActionHandler,
	typeHandler *TypeHandler,
	addressHandler *AddressHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())

	// Public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/actions/token/:token", actionHandler.ExecuteByToken)
	r.POST("/webhooks/bounce", addressHandler.Bounce)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/notifications/send", notificationHandler.Send)
		auth.POST("/notifications/:id/read", notificationHandler.MarkRead)
		auth.POST("/notifications/:id/actions", actionHandler.Execute)
		auth.GET("/notifications/:id/actions", actionHandler.List)
		auth.POST("/actions/batch", actionHandler.ExecuteBatch)
		auth.PUT("/addresses/:channel", addressHandler.Upsert)

		auth.GET("/preferences", preferenceHandler.List)
		auth.PUT("/preferences/:type_id", preferenceHandler.Update)
		auth.POST("/preferences/:type_name/subscribe", preferenceHandler.Subscribe)
		auth.POST("/preferences/:type_name/unsubscribe", preferenceHandler.Unsubscribe)

		auth.POST("/types", typeHandler.Create)
		auth.GET("/types", typeHandler.List)
		auth.PUT("/types/:id", typeHandler.Update)
		auth.POST("/types/:id/active", typeHandler.SetActive)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
