// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package idp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sensorlab/datagate/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testProvider() *JWTProvider {
	return NewJWTProvider(&config.AuthConfig{
		JWTSecret:   testSecret,
		Issuer:      "datagate",
		GroupsClaim: "groups",
	})
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "sub-alice",
		"username": "alice",
		"iss":      "datagate",
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(time.Hour).Unix(),
		"groups":   []string{"hydro_readers", "ops"},
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		identity, err := testProvider().Validate(ctx, signToken(t, baseClaims()))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if identity.Subject != "sub-alice" || identity.Username != "alice" {
			t.Errorf("unexpected identity: %+v", identity)
		}
		if len(identity.Groups) != 2 || identity.Groups[0] != "hydro_readers" {
			t.Errorf("unexpected groups: %v", identity.Groups)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := testProvider().Validate(ctx, "")
		if !errors.Is(err, ErrNoToken) {
			t.Errorf("expected ErrNoToken, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := baseClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()

		_, err := testProvider().Validate(ctx, signToken(t, claims))
		if !errors.Is(err, ErrExpiredToken) {
			t.Errorf("expected ErrExpiredToken, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
		signed, err := token.SignedString([]byte("another-secret-another-secret-xx"))
		if err != nil {
			t.Fatalf("failed to sign: %v", err)
		}

		_, err = testProvider().Validate(ctx, signed)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := baseClaims()
		claims["iss"] = "someone-else"

		_, err := testProvider().Validate(ctx, signToken(t, claims))
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing exp rejected", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "exp")

		_, err := testProvider().Validate(ctx, signToken(t, claims))
		if err == nil {
			t.Error("expected error for token without exp")
		}
	})

	t.Run("cognito groups alias", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "groups")
		claims["cognito:groups"] = []string{"sensor_team"}

		identity, err := testProvider().Validate(ctx, signToken(t, claims))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(identity.Groups) != 1 || identity.Groups[0] != "sensor_team" {
			t.Errorf("expected cognito:groups fallback, got %v", identity.Groups)
		}
	})

	t.Run("username falls back to subject", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "username")

		identity, err := testProvider().Validate(ctx, signToken(t, claims))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if identity.Username != "sub-alice" {
			t.Errorf("expected subject fallback, got %q", identity.Username)
		}
	})

	t.Run("no groups claim yields empty groups", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "groups")

		identity, err := testProvider().Validate(ctx, signToken(t, claims))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(identity.Groups) != 0 {
			t.Errorf("expected no groups, got %v", identity.Groups)
		}
	})
}

func TestMemoryAdmin(t *testing.T) {
	ctx := context.Background()
	admin := NewMemoryAdmin()

	if err := admin.AddUserToGroup(ctx, "alice", "hydro_readers"); err != nil {
		t.Fatalf("AddUserToGroup failed: %v", err)
	}
	if err := admin.AddUserToGroup(ctx, "alice", "ops"); err != nil {
		t.Fatalf("AddUserToGroup failed: %v", err)
	}

	groups, err := admin.ListMembership(ctx, "alice")
	if err != nil {
		t.Fatalf("ListMembership failed: %v", err)
	}
	if len(groups) != 2 || groups[0] != "hydro_readers" {
		t.Errorf("unexpected membership: %v", groups)
	}

	if err := admin.RemoveUserFromGroup(ctx, "alice", "ops"); err != nil {
		t.Fatalf("RemoveUserFromGroup failed: %v", err)
	}
	if err := admin.RemoveUserFromGroup(ctx, "alice", "ghost"); err == nil {
		t.Error("expected error for unknown group")
	}

	all, err := admin.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 groups, got %v", all)
	}
}

func TestLoginLimiter(t *testing.T) {
	limiter := NewLoginLimiter(&config.AuthConfig{
		LoginRatePerMinute: 60,
		LoginBurst:         2,
	})

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("expected third immediate attempt to be limited")
	}

	// A different IP has its own budget.
	if !limiter.Allow("10.0.0.2") {
		t.Error("expected independent budget per IP")
	}
}
