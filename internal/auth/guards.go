package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// Guards bundles the per-route middleware handed to domain handlers. Nil
// members pass requests through.
type Guards struct {
	Required gin.HandlerFunc
	Optional gin.HandlerFunc
	Limiter  *RateLimiter
}

// NewGuards builds guards from the session middleware and rate limiter
func NewGuards(am *AuthMiddleware, rl *RateLimiter) Guards {
	return Guards{
		Required: am.RequireAuth(),
		Optional: am.OptionalAuth(),
		Limiter:  rl,
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}

// RequireAuth returns the authenticated-only middleware
func (g Guards) RequireAuth() gin.HandlerFunc {
	if g.Required == nil {
		return passThrough
	}
	return g.Required
}

// OptionalAuth returns the optional-session middleware
func (g Guards) OptionalAuth() gin.HandlerFunc {
	if g.Optional == nil {
		return passThrough
	}
	return g.Optional
}

// RateLimit returns the limiter for the named route
func (g Guards) RateLimit(route string) gin.HandlerFunc {
	if g.Limiter == nil {
		return passThrough
	}
	return g.Limiter.Limit(route)
}

// FixedUser authenticates every request as u, or rejects it when u is nil.
// Handler tests use it in place of session validation.
func FixedUser(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u == nil {
			apperrors.Respond(c, nil, apperrors.Unauthenticated("Unauthorized"))
			return
		}
		SetCurrentUser(c, u)
		c.Next()
	}
}
