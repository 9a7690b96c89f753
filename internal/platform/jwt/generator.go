package jwtmw

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeHistoryRead grants access to the diagnosis history endpoints.
const ScopeHistoryRead = "history:read"

// Generator defines the interface for JWT token generation.
type Generator interface {
	// GenerateToken creates a signed JWT token for the given operator.
	GenerateToken(subject string, scope string) (string, error)
}

// generator implements the Generator interface.
type generator struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewGenerator creates a new JWT generator with the provided secret, issuer and expiration duration.
func NewGenerator(secret, issuer string, expiration time.Duration) *generator {
	return &generator{
		secret:     []byte(secret),
		issuer:     issuer,
		expiration: expiration,
	}
}

// GenerateToken creates a signed JWT token with standard claims.
func (g *generator) GenerateToken(subject string, scope string) (string, error) {
	if len(g.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"iss":   g.issuer,
		"exp":   now.Add(g.expiration).Unix(),
		"iat":   now.Unix(),
		"scope": scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
