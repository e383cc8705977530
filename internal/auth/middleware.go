/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"path"
	"strings"

	"gorm.io/gorm"
)

// websocketTokenPaths are upgrade endpoints where query-token auth is
// allowed. Browser WebSocket clients cannot set Authorization headers.
var websocketTokenPaths = map[string]bool{
	"/api/v1/events":          true,
	"/api/v1/intervals/watch": true,
}

// Middleware validates API keys and injects claims into request context.
// API keys are expected in the X-API-Key header.
func Middleware(db *gorm.DB) func(http.Handler) http.Handler {
	return MiddlewareWithJWT(db, nil)
}

// MiddlewareWithJWT validates API keys or JWT Bearer tokens.
// If jwtSecret is nil, only API keys are validated.
func MiddlewareWithJWT(db *gorm.DB, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// X-API-Key wins when both credentials are present.
			apiKey := r.Header.Get("X-API-Key")
			if apiKey != "" {
				claims, err := ValidateAPIKey(db, apiKey)
				if err != nil {
					unauthorized(w)
					return
				}
				ctx := WithClaims(r.Context(), claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if jwtSecret != nil {
				token := extractToken(r)
				if token != "" {
					claims, err := Parse(jwtSecret, token)
					if err == nil && claims != nil {
						ctx := WithClaims(r.Context(), claims)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}

			unauthorized(w)
		})
	}
}

// RequireRoles gates a handler on the authenticated role. No claims in
// context means the middleware did not run; that is a 401, not a 403.
func RequireRoles(next http.Handler, roles ...string) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w)
			return
		}
		if !allowed[claims.Role] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if isWebSocketUpgrade(r) && websocketTokenPaths[path.Clean(r.URL.Path)] {
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			return token
		}
	}
	return ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}
