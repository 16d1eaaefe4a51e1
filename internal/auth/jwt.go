// Package auth issues and validates the bearer tokens protecting the
// monitor API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates a malformed, tampered or wrongly
	// signed token
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates a token past its expiry
	ErrTokenExpired = errors.New("token expired")
)

// JWTManager signs and validates HS256 access tokens
type JWTManager struct {
	secret   []byte
	duration time.Duration
}

// NewJWTManager creates a JWT manager
func NewJWTManager(secret string, duration time.Duration) *JWTManager {
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), duration: duration}
}

// GenerateToken issues a token for the given subject
func (m *JWTManager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "pattern-sentinel",
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns its subject
func (m *JWTManager) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
