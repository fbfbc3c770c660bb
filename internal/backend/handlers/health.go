package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hubconnect/internal/backend/models"
)

// HealthChecker is implemented by *database.GormDB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

func HealthCheck(checker HealthChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := checker.HealthCheck(ctx); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse("database unavailable"))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"status": "healthy",
			"time":   time.Now().UTC(),
		}))
	}
}
