package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenIssuer mints and verifies the short-lived project-scoped tokens
// clients present when opening a WebSocket.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. ttl bounds how long a token opens
// sockets for.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// IssueProjectToken returns a signed token whose subject is the project.
func (t *TokenIssuer) IssueProjectToken(projectID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   projectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// VerifyProjectToken checks signature and expiry and returns the project
// the token is scoped to.
func (t *TokenIssuer) VerifyProjectToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// apiKeyMiddleware guards the REST API. Probes, metrics and the
// WebSocket endpoint (which carries its own token) are exempt. An empty
// configured key disables the check.
func apiKeyMiddleware(apiKey string, logger zerolog.Logger) fiber.Handler {
	open := map[string]bool{
		"/healthz": true,
		"/readyz":  true,
		"/metrics": true,
	}
	return func(c *fiber.Ctx) error {
		if apiKey == "" || open[c.Path()] || strings.HasPrefix(c.Path(), "/ws/") {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if provided == "" {
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				provided = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if provided != apiKey {
			logger.Warn().Str("path", c.Path()).Str("ip", c.IP()).Msg("unauthorized request")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing API key")
		}
		return c.Next()
	}
}
