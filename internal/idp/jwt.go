// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/metrics"
)

// cognitoGroupsClaim is the group claim name AWS Cognito tokens carry.
// Accepted as an alias so Cognito-issued tokens work without reconfiguring.
const cognitoGroupsClaim = "cognito:groups"

// JWTProvider validates HMAC-SHA256 bearer tokens.
type JWTProvider struct {
	secret      []byte
	issuer      string
	groupsClaim string
}

// NewJWTProvider creates a provider from auth configuration.
func NewJWTProvider(cfg *config.AuthConfig) *JWTProvider {
	groupsClaim := cfg.GroupsClaim
	if groupsClaim == "" {
		groupsClaim = "groups"
	}
	return &JWTProvider{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.Issuer,
		groupsClaim: groupsClaim,
	}
}

// Validate parses and verifies a bearer token, returning the identity it
// asserts. Expiry and issued-at are enforced by the jwt library.
func (p *JWTProvider) Validate(ctx context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrNoToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, opts...)

	if err != nil {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %s", ErrExpiredToken, err)
		}
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		identity.Subject = sub
	}
	if username, ok := claims["username"].(string); ok {
		identity.Username = username
	}
	if identity.Username == "" {
		identity.Username = identity.Subject
	}
	if identity.Username == "" {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return Identity{}, fmt.Errorf("%w: no subject or username claim", ErrInvalidToken)
	}

	identity.Groups = extractGroups(claims, p.groupsClaim)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return identity, nil
}

// extractGroups reads the configured groups claim, falling back to the
// Cognito alias. Tolerates both []string and []interface{} shapes.
func extractGroups(claims jwt.MapClaims, claimName string) []string {
	raw, ok := claims[claimName]
	if !ok {
		raw, ok = claims[cognitoGroupsClaim]
	}
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		groups := make([]string, 0, len(v))
		for _, g := range v {
			if s, ok := g.(string); ok {
				groups = append(groups, s)
			}
		}
		return groups
	default:
		return nil
	}
}
