package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hubconnect/internal/backend/models"
)

const userIDContextKey = "user_id"

// RequireUser resolves the acting user from the session, then from the
// trusted proxy header when one is configured. Requests without a user are
// rejected with 403. Whether the user exists is checked by the services.
func RequireUser(trustedHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetSessionString(c, SessionUserKey)
		if userID == "" && trustedHeader != "" {
			userID = strings.TrimSpace(c.GetHeader(trustedHeader))
		}

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse("forbidden: no authenticated user"))
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// CurrentUserID returns the user resolved by RequireUser.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
