// Package identity issues and validates the bearer tokens used by the control API.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrEmptySubject = errors.New("token subject is empty")
)

// Config configures the HS256 authenticator.
type Config struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// Authenticator signs and verifies HS256 tokens whose subject is a user id.
type Authenticator struct {
	secret   []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Authenticator{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		duration: duration,
		now:      time.Now,
	}
}

// IssueToken signs a token for userID.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptySubject
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.duration)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, issuer and expiry of token and returns its subject.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrEmptySubject
	}

	return claims.Subject, nil
}
