package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"claims-portal/backend/internal/security"
	sessiondomain "claims-portal/backend/internal/session/domain"
)

const bearerPrefix = "bearer "

// accessCookie is the fallback access-token cookie for clients that do not set
// the Authorization header.
const accessCookie = "access_token"

// SessionGetter looks up the session behind an access token so revocation takes
// effect before the token expires.
type SessionGetter interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// Auth returns middleware that validates the access token and loads the caller
// identity into the request context. Revoked or expired sessions fail even when
// the token itself is still within its lifetime.
func Auth(tokens *security.TokenProvider, sessions SessionGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		sessionID, userID, role, err := tokens.ValidateAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if sessions != nil {
			sess, err := sessions.GetByID(c.Request.Context(), sessionID)
			if err != nil || !sess.Active(time.Now().UTC()) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or revoked"})
				return
			}
		}
		ctx := WithIdentity(c.Request.Context(), userID, role, sessionID)
		ctx = WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractAccessToken returns the Bearer token from the Authorization header or,
// failing that, the access cookie. Empty when neither is present.
func extractAccessToken(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	if cookie, err := c.Cookie(accessCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}
