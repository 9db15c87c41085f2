// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package adminapi exposes the Loader and Executor's logical operations
// over HTTP for embedders that want a process boundary between the
// agent host and whatever drives it (a CLI, an operator console, a
// fleet manager). Every route is a thin adapter over pkg/loader and
// pkg/executor; the package holds no agent-lifecycle state of its own.
//
// Authentication adapts the claims shape and verification idiom of the
// teacher's oidc/auth0 package -- issuer, subject, jti, exp with
// leeway; no audience claim is set or checked -- to a single shared
// HS256 secret instead of an RS256
// JWKS round trip, since this is a service-to-service token between an
// operator tool and the host it drives rather than a third-party
// identity provider handshake.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingBearer is returned when the Authorization header is absent
// or not a "Bearer <token>" value.
var ErrMissingBearer = errors.New("adminapi: missing bearer token")

// ErrTokenInvalid wraps any jwt parse/validate failure.
var ErrTokenInvalid = errors.New("adminapi: invalid token")

// claimsLeeway absorbs clock skew between token issuance and verification,
// mirroring the 60s leeway auth0.verifier.Verify applies to exp/nbf/iat.
const claimsLeeway = 60 * time.Second

// TokenClaims is the claim set an admin-api bearer token carries.
type TokenClaims struct {
	Subject string `json:"sub"`
	Scope   string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 bearer tokens for a single shared
// secret. There is no JWKS or key rotation: the secret is whatever
// config.AdminAPIConfig.JWTSecret holds, rotated out of band by the
// operator like any other shared secret.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer builds a TokenIssuer. issuer is stamped into minted
// tokens' "iss" claim and checked against incoming tokens' "iss".
func NewTokenIssuer(secret []byte, issuer string) *TokenIssuer {
	if issuer == "" {
		issuer = "agenthost-admin"
	}
	return &TokenIssuer{secret: secret, issuer: issuer}
}

// Issue mints a bearer token for subject, valid for ttl.
func (t *TokenIssuer) Issue(subject string, ttl time.Duration) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("adminapi: cannot issue token, no secret configured")
	}
	now := time.Now()
	claims := TokenClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("adminapi: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates tokenString, returning its claims on
// success. It checks signature, issuer, and expiry with claimsLeeway.
func (t *TokenIssuer) Verify(tokenString string) (*TokenClaims, error) {
	if len(t.secret) == 0 {
		return nil, errors.New("adminapi: cannot verify token, no secret configured")
	}
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return t.secret, nil
	}, jwt.WithLeeway(claimsLeeway), jwt.WithIssuer(t.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}
	return claims, nil
}

type contextKey string

const subjectContextKey contextKey = "adminapi.subject"

// SubjectFromContext returns the bearer token subject stashed by
// RequireBearer, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectContextKey).(string)
	return sub, ok
}

// RequireBearer returns middleware that verifies an Authorization:
// Bearer <token> header via issuer before invoking next.
func RequireBearer(issuer *TokenIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, ErrMissingBearer)
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		claims, err := issuer.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
