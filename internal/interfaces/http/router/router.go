package router

import (
	"github.com/gin-gonic/gin"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles everything the router wires together
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Webhook *handler.WebhookHandler
	System  *handler.SystemHandler
}

// Setup builds the gin engine with all middleware and routes. Webhook intake
// verifies per-source HMAC signatures; the operational endpoints sit behind
// the shared admin token.
func Setup(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(deps.Config.HTTP.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(deps.Config.HTTP.TrustedProxies)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(logger.Recovery(deps.Logger))
	engine.Use(middleware.Secure())

	// Probes stay outside the signed/authenticated groups
	engine.GET("/healthz", deps.System.Health)
	engine.GET("/readyz", deps.System.Ready)

	webhooks := engine.Group("/webhooks")
	{
		// Intake: the topic path segments are informational, routing is by
		// the verified topic header.
		intake := webhooks.Group("/:source")
		intake.Use(middleware.WebhookSignature(middleware.SignatureConfig{
			StorefrontSecret:  deps.Config.Webhook.StorefrontSecret,
			MarketplaceSecret: deps.Config.Webhook.MarketplaceSecret,
			MaxPayloadBytes:   deps.Config.Webhook.MaxPayloadBytes,
		}, deps.Logger))
		intake.POST("/:resource/:action", deps.Webhook.Receive)

		// Operational surface
		admin := webhooks.Group("")
		admin.Use(middleware.AdminToken(deps.Config.Webhook.AdminToken, deps.Logger))
		admin.Use(middleware.BodyLimit(1 << 20))
		{
			admin.GET("/status", deps.Webhook.Status)
			admin.POST("/retry/:deliveryId", deps.Webhook.Retry)
			admin.GET("/jobs/dead", deps.Webhook.DeadJobs)
			admin.POST("/jobs/:jobId/requeue", deps.Webhook.RequeueJob)
		}
	}

	return engine
}
