package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// scopeHeader names the tenant boundary for a command; absent means the
// global sentinel.
const scopeHeader = "X-Tenant-Scope"

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.HealthCheck)

	// The payment webhook authenticates itself via its signature.
	r.POST("/webhooks/payment", handler.PaymentWebhook)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(accessKeyMiddleware(apiAccessKey))
	}

	api.POST("/sources", handler.RegisterSource)
	api.GET("/sources", handler.ListSources)
	api.DELETE("/sources/:id", handler.RemoveSource)
	api.POST("/sources/:id/test", handler.TestSource)

	api.POST("/subscriptions", handler.Subscribe)
	api.DELETE("/subscriptions/:destination/:source", handler.Unsubscribe)
	api.GET("/subscriptions/:destination", handler.ListSubscriptions)

	api.GET("/status", handler.Status)

	api.GET("/billing", handler.BillingStatus)
	api.POST("/billing/upgrade", handler.Upgrade)
	api.POST("/billing/cancel", handler.CancelSubscription)
}

func accessKeyMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid API key"})
			return
		}
		c.Next()
	}
}
