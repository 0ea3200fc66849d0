// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/idp"
)

// fakeProvider accepts exactly one token.
type fakeProvider struct {
	token    string
	identity idp.Identity
}

func (p *fakeProvider) Validate(ctx context.Context, token string) (idp.Identity, error) {
	if token == "" {
		return idp.Identity{}, idp.ErrNoToken
	}
	if token != p.token {
		return idp.Identity{}, idp.ErrInvalidToken
	}
	return p.identity, nil
}

type fakeUserStore struct {
	ensured []string
}

func (s *fakeUserStore) EnsureUser(ctx context.Context, username, subject string) (int64, error) {
	s.ensured = append(s.ensured, username)
	return 1, nil
}

func TestAuthenticator(t *testing.T) {
	provider := &fakeProvider{
		token: "good-token",
		identity: idp.Identity{
			Subject:  "sub-alice",
			Username: "alice",
			Groups:   []string{"hydro_readers"},
		},
	}
	users := &fakeUserStore{}
	auth := NewAuthenticator(provider, users)

	var gotPrincipal bool
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		gotPrincipal = ok && p.Username == "alice" && p.HoldsGroup("hydro_readers")
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes and mirrors user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !gotPrincipal {
			t.Error("expected principal in context")
		}
		if len(users.ensured) != 1 || users.ensured[0] != "alice" {
			t.Errorf("expected user mirrored, got %v", users.ensured)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Error("expected WWW-Authenticate header")
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("non-bearer scheme rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthenticatorLimiter(t *testing.T) {
	provider := &fakeProvider{token: "good-token", identity: idp.Identity{Username: "alice"}}
	limiter := idp.NewLoginLimiter(&config.AuthConfig{LoginRatePerMinute: 1, LoginBurst: 2})
	handler := NewAuthenticator(provider, nil).WithLimiter(limiter).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	attempt := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
		req.RemoteAddr = "10.0.0.9:41000"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// The burst of invalid attempts gets 401s, then the limiter kicks in.
	if got := attempt("bad"); got != http.StatusUnauthorized {
		t.Fatalf("first bad attempt = %d, want 401", got)
	}
	if got := attempt("bad"); got != http.StatusUnauthorized {
		t.Fatalf("second bad attempt = %d, want 401", got)
	}
	if got := attempt("bad"); got != http.StatusTooManyRequests {
		t.Fatalf("third bad attempt = %d, want 429", got)
	}

	// A valid token never consults the limiter.
	if got := attempt("good-token"); got != http.StatusOK {
		t.Fatalf("valid attempt = %d, want 200", got)
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("honors upstream ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "upstream-id" {
			t.Errorf("expected upstream ID preserved, got %q", got)
		}
	})
}
