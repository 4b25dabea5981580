package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wshchocolatine/ake-api/internal/session"
)

const (
	// SessionCookie carries the session id between requests.
	SessionCookie = "ake_session"

	// Context keys for the authenticated user and their session secret. The
	// secret (decrypted private key) lives only for the duration of the
	// request; nothing durable ever holds it.
	UserIDKey     = "userID"
	SessionKeyKey = "sessionKey"
	SessionIDKey  = "sessionID"
)

// Auth resolves the caller's session from the session cookie or a bearer
// token and places the user id and session secret on the request context.
// The core is agnostic to which transport carried the session id.
func Auth(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := sessionIDFromRequest(c)
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		sess, err := sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set(UserIDKey, sess.UserID)
		c.Set(SessionKeyKey, sess.PrivateKey)
		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

func sessionIDFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}
