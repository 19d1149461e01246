package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	"github.com/pdhoward/cypressresortweb/pkg/errors"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ContextKeySession is the context key for the authenticated session.
	ContextKeySession ContextKey = "session"
	// ContextKeyEmail is the context key for the authenticated email.
	ContextKeyEmail ContextKey = "email"
)

// Authenticator resolves a session token to an active session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
}

// SessionMiddleware guards routes that need a signed-in guest.
type SessionMiddleware struct {
	auth       Authenticator
	cookieName string
}

// NewSessionMiddleware creates a new session middleware.
func NewSessionMiddleware(auth Authenticator, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{
		auth:       auth,
		cookieName: cookieName,
	}
}

// RequireSession returns a middleware that requires an active session.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, m.cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "sign-in required",
			})
			return
		}

		sess, err := m.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, errors.ErrStoreUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":             "store_unavailable",
					"error_description": "please try again shortly",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "invalid or expired session",
			})
			return
		}

		c.Set(string(ContextKeySession), sess)
		c.Set(string(ContextKeyEmail), sess.Email)
		c.Next()
	}
}

// SessionToken returns the session token from the cookie, falling back to a
// Bearer Authorization header for non-browser clients.
func SessionToken(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetSession extracts the authenticated session from context.
func GetSession(c *gin.Context) (*session.Session, error) {
	v, exists := c.Get(string(ContextKeySession))
	if !exists {
		return nil, errors.ErrUnauthorized
	}
	sess, ok := v.(*session.Session)
	if !ok {
		return nil, errors.ErrUnauthorized
	}
	return sess, nil
}

// GetClientIP extracts the client IP address. Forwarding headers count only
// when the peer is one of the engine's trusted proxies.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}
