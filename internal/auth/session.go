// Package auth validates sessions minted by the sign-in service and provides
// the HTTP security middleware.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kinexbt/coin-yaps/internal/models"
	"github.com/kinexbt/coin-yaps/internal/user"
)

// SessionClaims is the payload of a session token
type SessionClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Picture  string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the claims into a user identity
func (c *SessionClaims) Identity() user.Identity {
	return user.Identity{
		ProviderID: c.Subject,
		Email:      c.Email,
		Name:       c.Name,
		Username:   c.Username,
		Image:      c.Picture,
	}
}

// UserResolver maps a session identity onto a stored user
type UserResolver interface {
	UpsertFromIdentity(ctx context.Context, identity user.Identity) (*models.User, error)
}

var errMissingEmail = errors.New("session has no email claim")

// Sessions verifies HS256 session tokens
type Sessions struct {
	secret []byte
	issuer string
}

// NewSessions creates a verifier for tokens signed with secret. An empty
// issuer accepts any iss claim.
func NewSessions(secret, issuer string) *Sessions {
	return &Sessions{secret: []byte(secret), issuer: issuer}
}

// Parse validates tokenString and returns its claims
func (s *Sessions) Parse(tokenString string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Email == "" {
		return nil, errMissingEmail
	}
	return claims, nil
}

// Issue signs a session for identity valid for ttl. The sign-in service is
// the production issuer; this is used by tooling and tests.
func (s *Sessions) Issue(identity user.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Email:    identity.Email,
		Name:     identity.Name,
		Username: identity.Username,
		Picture:  identity.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ProviderID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}
