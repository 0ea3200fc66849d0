// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/sensorlab/datagate/internal/idp"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/models"
)

// principalKey is the context key the authenticated principal is stored under.
const principalKey contextKey = "principal"

// UserStore mirrors identities into the permissions store on first sight.
type UserStore interface {
	EnsureUser(ctx context.Context, username, subject string) (int64, error)
}

// Authenticator validates bearer tokens and attaches the principal to the
// request context.
type Authenticator struct {
	provider idp.Provider
	users    UserStore
	limiter  *idp.LoginLimiter
}

// NewAuthenticator creates the authentication middleware. users may be nil
// when no permission store mirroring is wanted.
func NewAuthenticator(provider idp.Provider, users UserStore) *Authenticator {
	return &Authenticator{provider: provider, users: users}
}

// WithLimiter throttles repeated invalid-token attempts per client IP.
// Valid tokens are never limited.
func (a *Authenticator) WithLimiter(l *idp.LoginLimiter) *Authenticator {
	a.limiter = l
	return a
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the principal in the context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		identity, err := a.provider.Validate(r.Context(), token)
		if err != nil {
			if a.limiter != nil && !a.limiter.Allow(clientIP(r)) {
				http.Error(w, "too many attempts", http.StatusTooManyRequests)
				return
			}
			logging.FromContext(r.Context()).Debug().
				Err(err).
				Str("path", r.URL.Path).
				Msg("Authentication rejected")
			w.Header().Set("WWW-Authenticate", `Bearer realm="datagate"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		principal := models.Principal{
			Subject:  identity.Subject,
			Username: identity.Username,
			Groups:   identity.Groups,
		}

		if a.users != nil {
			// Mirror the identity lazily; a store hiccup must not block
			// an otherwise valid request.
			if _, err := a.users.EnsureUser(r.Context(), principal.Username, principal.Subject); err != nil {
				logging.FromContext(r.Context()).Warn().
					Err(err).
					Str("username", principal.Username).
					Msg("Failed to mirror user into permissions store")
			}
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP returns the remote IP. RealIP middleware runs earlier in the
// chain, so RemoteAddr already reflects X-Forwarded-For when trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractBearer pulls the token from the Authorization header.
func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// ContextWithPrincipal stores a principal in the context. Exposed for tests.
func ContextWithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
