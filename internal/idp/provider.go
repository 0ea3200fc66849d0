// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package idp validates tokens from the external identity provider and
// exposes its group administration surface.
//
// Datagate never issues identities; it consumes them. The Provider seam
// keeps the concrete IdP swappable; the JWTProvider covers any IdP that
// signs HMAC bearer tokens with subject, username and group claims.
package idp

import (
	"context"
	"errors"
)

// Identity is what a validated token asserts about its bearer.
type Identity struct {
	Subject  string
	Username string
	Groups   []string
}

// Validation errors. Handlers map all of them to 401.
var (
	ErrNoToken      = errors.New("no token supplied")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Provider validates bearer tokens.
type Provider interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// Admin is the identity provider's group administration surface. The
// production collaborator is the IdP's own API; the in-memory
// implementation backs tests and single-node deployments.
type Admin interface {
	AddUserToGroup(ctx context.Context, username, group string) error
	RemoveUserFromGroup(ctx context.Context, username, group string) error
	ListGroups(ctx context.Context) ([]string, error)
	ListMembership(ctx context.Context, username string) ([]string, error)
}
