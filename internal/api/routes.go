package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/config"
	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/middleware"
	"github.com/example/subtracker/internal/web"
)

// Services bundles what the routes depend on.
type Services struct {
	Auth          *core.AuthService
	Subscriptions *core.SubscriptionService
	Sessions      *core.SessionManager
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (request id, logging, recovery, CORS) is expected to be applied
// to router before this is called.
func SetupRoutes(router *gin.Engine, appConfig *config.Config, logger *zap.Logger, services Services) {
	authMW := middleware.NewAuthMiddleware(services.Auth, logger)

	authHandler := NewAuthHandler(services.Auth, appConfig.IsRelease(), logger)
	subscriptionHandler := NewSubscriptionHandler(services.Subscriptions, services.Sessions, appConfig.ProjectionWait, logger)

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.SignUp)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/federated", authHandler.Federated)
			authGroup.POST("/password-reset", authHandler.PasswordReset)
			authGroup.POST("/verification-email", authHandler.VerificationEmail)
			authGroup.POST("/logout", authMW.VerifyToken(), authHandler.Logout)
			authGroup.GET("/me", authMW.VerifyToken(), authHandler.Me)
		}

		subscriptionsGroup := apiV1.Group("/subscriptions", authMW.VerifyToken())
		{
			subscriptionsGroup.POST("", subscriptionHandler.Create)
			subscriptionsGroup.GET("", subscriptionHandler.Dashboard)
			subscriptionsGroup.GET("/stream", subscriptionHandler.Stream)
			subscriptionsGroup.GET("/:id", subscriptionHandler.Get)
			subscriptionsGroup.PUT("/:id", subscriptionHandler.Update)
			subscriptionsGroup.PATCH("/:id/status", subscriptionHandler.SetStatus)
			subscriptionsGroup.DELETE("/:id", subscriptionHandler.Delete)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "sessions": services.Sessions.Len()})
	})

	web.RegisterRoutes(router, authMW, web.NewPages(appConfig.StaticDir, logger))

	logger.Info("Routes configured under /api/v1, /health and the page paths.")
}
