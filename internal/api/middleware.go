package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-engine/pkg/trace"
	"notification-engine/pkg/util"
)

// AuthMiddleware validates the bearer token and stores the caller's user and
// tenant on the gin context.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		userID, tenantID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("tenant_id", tenantID)

		c.Next()
	}
}

// TraceMiddleware propagates the inbound trace id, minting one when absent,
// and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName)
		if traceID == "" {
			traceID = trace.NewTraceID()
		}

		ctx := trace.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, traceID)

		c.Next()
	}
}

func callerIdentity(c *gin.Context) (userID, tenantID string, ok bool) {
	user, uok := c.Get("user_id")
	tenant, tok := c.Get("tenant_id")
	if !uok || !tok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", "", false
	}
	return user.(string), tenant.(string), true
}
