package rest

import (
	"github.com/Dhoini/premium-billing-reconciler/internal/api/rest/handlers"
	"github.com/Dhoini/premium-billing-reconciler/internal/integration/stripe"
	"github.com/Dhoini/premium-billing-reconciler/internal/middleware"
	"github.com/Dhoini/premium-billing-reconciler/internal/service"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Verifier     *stripe.Verifier
	Webhooks     service.WebhookService
	Accounts     *service.AccountService
	Tokens       middleware.TokenValidator // nil отключает административное API
	Registry     *prometheus.Registry
	HealthChecks map[string]handlers.HealthCheck
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.NewHealthHandler(deps.HealthChecks).Health)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	webhookHandler := handlers.NewWebhookHandler(deps.Verifier, deps.Webhooks, log)
	r.POST("/webhook", webhookHandler.HandleStripeWebhook)
	r.POST("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	if deps.Tokens == nil {
		log.Warnw("JWT secret is not configured, admin API disabled")
		return r
	}

	auth := middleware.NewJWTMiddleware(deps.Tokens, log)
	adminHandler := handlers.NewAdminHandler(deps.Accounts, deps.Webhooks, log)

	v1 := r.Group("/api/v1", auth.RequireAuth(middleware.ScopeBillingRead))
	{
		v1.GET("/accounts/:account_id", adminHandler.GetAccount)

		webhookEvents := v1.Group("/webhook-events")
		{
			webhookEvents.GET("", adminHandler.GetWebhookEvents)
			webhookEvents.GET("/:event_id", adminHandler.GetWebhookEvent)
		}
	}
	return r
}
