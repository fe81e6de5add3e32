package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/models"
)

const (
	authorizationHeader = "Authorization"
	sessionCookie       = "coinyaps_session"
	userContextKey      = "auth_user"
)

// AuthMiddleware resolves the caller from a session token
type AuthMiddleware struct {
	sessions *Sessions
	users    UserResolver
	log      logrus.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions *Sessions, users UserResolver, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, users: users, log: log}
}

// RequireAuth rejects requests without a valid session
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := am.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid session is present and
// otherwise continues anonymously
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			c.Next()
			return
		}
		claims, err := am.sessions.Parse(raw)
		if err != nil {
			am.log.WithError(err).Debug("ignoring invalid optional session")
			c.Next()
			return
		}
		u, err := am.users.UpsertFromIdentity(c.Request.Context(), claims.Identity())
		if err != nil {
			apperrors.Respond(c, am.log, err)
			return
		}
		c.Set(userContextKey, u)
		c.Next()
	}
}

func (am *AuthMiddleware) authenticate(c *gin.Context) (*models.User, bool) {
	raw := bearer(c)
	if raw == "" {
		apperrors.Respond(c, am.log, apperrors.Unauthenticated("Unauthorized"))
		return nil, false
	}

	claims, err := am.sessions.Parse(raw)
	if err != nil {
		am.log.WithError(err).Warn("Authentication failed")
		apperrors.Respond(c, am.log, apperrors.Unauthenticated("Unauthorized"))
		return nil, false
	}

	u, err := am.users.UpsertFromIdentity(c.Request.Context(), claims.Identity())
	if err != nil {
		apperrors.Respond(c, am.log, err)
		return nil, false
	}

	c.Set(userContextKey, u)
	return u, true
}

// bearer extracts the session token from the Authorization header or, for
// browser clients, the session cookie
func bearer(c *gin.Context) string {
	if header := c.GetHeader(authorizationHeader); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie
	}
	return ""
}

// CurrentUser returns the authenticated caller, or nil for anonymous requests
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// SetCurrentUser attaches u to the request, used by handler tests
func SetCurrentUser(c *gin.Context, u *models.User) {
	c.Set(userContextKey, u)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// SecureCORS allows credentialed requests from the configured origins only
func SecureCORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
