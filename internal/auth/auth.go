// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package auth provides single-admin JWT authentication for the dashboard
// API. The webhook endpoint never goes through this package: Bitrix24
// cannot authenticate, so the webhook path stays open by design.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/logging"
)

// Sentinel authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the JWT claims for a dashboard session.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues and validates dashboard session tokens. With auth mode
// "none" every request passes and Login always fails.
type Manager struct {
	enabled      bool
	secret       []byte
	username     string
	passwordHash []byte
	timeout      time.Duration
}

// New creates a Manager from the security configuration. The plaintext
// admin password is bcrypt-hashed here and not retained.
func New(cfg *config.SecurityConfig) (*Manager, error) {
	if cfg.AuthMode == "none" {
		logging.Warn().Msg("Dashboard authentication disabled")
		return &Manager{enabled: false}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	return &Manager{
		enabled:      true,
		secret:       []byte(cfg.JWTSecret),
		username:     cfg.AdminUsername,
		passwordHash: hash,
		timeout:      cfg.SessionTimeout,
	}, nil
}

// Enabled reports whether authentication is enforced.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Login verifies the admin credentials and issues a signed session token.
func (m *Manager) Login(username, password string) (string, error) {
	if !m.enabled {
		return "", fmt.Errorf("login with auth disabled: %w", ErrInvalidCredentials)
	}
	if username != m.username {
		// Burn comparable time so username probing is no cheaper than
		// password probing.
		_ = bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a session token.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey struct{}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(contextKey{}).(string)
	return u, ok
}

// Middleware enforces a Bearer session token on dashboard routes. With
// auth disabled it passes everything through.
func (m *Manager) Middleware(unauthorized func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.enabled {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				unauthorized(w, r, fmt.Errorf("%w: missing bearer token", ErrInvalidToken))
				return
			}

			claims, err := m.ValidateToken(tokenString)
			if err != nil {
				unauthorized(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
