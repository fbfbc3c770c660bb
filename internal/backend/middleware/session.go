package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"hubconnect/internal/backend/models"
)

const (
	SessionName = "hubconnect-session"

	// SessionUserKey holds the id of the signed-in user. The auth subsystem
	// that owns login writes it.
	SessionUserKey = "user_id"
)

func SessionMiddleware(secret string, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

func SetSessionValue(c *gin.Context, key string, value interface{}) error {
	session := sessions.Default(c)
	session.Set(key, value)
	return session.Save()
}

func GetSessionValue(c *gin.Context, key string) interface{} {
	session := sessions.Default(c)
	return session.Get(key)
}

// GetSessionString returns the string stored under key, or "".
func GetSessionString(c *gin.Context, key string) string {
	if value, ok := GetSessionValue(c, key).(string); ok {
		return value
	}
	return ""
}

func DeleteSessionValue(c *gin.Context, key string) error {
	session := sessions.Default(c)
	session.Delete(key)
	return session.Save()
}

// OAuthStateKey is the session key of the pending OAuth state of a provider.
func OAuthStateKey(kind models.ProviderKind) string {
	return "oauth_state_" + kind.Slug()
}
