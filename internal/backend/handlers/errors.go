package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/providers"
	"hubconnect/internal/backend/services"
	"hubconnect/internal/backend/vault"
	"hubconnect/internal/crypto"
)

// statusFor maps a service error to an HTTP status. Errors outside the
// domain taxonomy are internal.
func statusFor(err error) int {
	var (
		notFound    *services.NotFoundError
		forbidden   *services.ForbiddenError
		validation  *services.ValidationError
		invalid     *services.InvalidTokenError
		mismatch    *services.IdentityMismatchError
		exchange    *providers.ExchangeError
		identity    *providers.IdentityFetchError
		unavailable *providers.ProviderUnavailableError
		vaultErr    *vault.VaultError
		cipherErr   *crypto.CipherError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &validation),
		errors.As(err, &invalid),
		errors.As(err, &mismatch),
		errors.As(err, &exchange),
		errors.As(err, &identity),
		errors.As(err, &unavailable),
		errors.As(err, &vaultErr),
		errors.As(err, &cipherErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, models.ErrorResponse("internal server error"))
		return
	}

	if providers.IsUnavailable(err) {
		c.Header("Retry-After", "5")
	}
	c.JSON(status, models.ErrorResponse(err.Error()))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse(message))
}
