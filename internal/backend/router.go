package backend

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hubconnect/config"
	"hubconnect/internal/backend/handlers"
	"hubconnect/internal/backend/middleware"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/services"
)

func SetupRouter(cfg config.ServerConfig, connections *services.ConnectionService, oauthProviders []models.ProviderKind, checker handlers.HealthChecker, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins, cfg.TrustedUserHeader))
	r.Use(middleware.LoggingMiddleware(logger.Named("http")))
	r.Use(gin.Recovery())
	r.Use(middleware.SessionMiddleware(cfg.SessionSecret, cfg.SecureCookies))

	r.GET("/health", handlers.HealthCheck(checker, logger))

	api := r.Group("/api/v1")
	{
		integrations := api.Group("/integrations")
		integrations.Use(middleware.RequireUser(cfg.TrustedUserHeader))
		handlers.NewIntegrationHandler(connections, oauthProviders, logger).RegisterRoutes(integrations)
	}

	return r
}
