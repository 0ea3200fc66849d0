// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

/*
models.go - Datagate Domain Models

This file defines the core domain structures shared across packages.

Key Structures:
  - Group: named permission group
  - User: identity-provider subject mirrored into the permissions store
  - Dataset: registered time-series entity with a sensor type
  - App: user-owned application namespace for time-series data
  - Principal: authenticated caller (subject, username, groups)

Usage:
  - Database operations in internal/database
  - Access resolution in internal/access
  - API handlers in internal/api
*/

package models

import "time"

// Group is a named permission group. Membership in a group conveys access
// to the datasets granted to the group, directly or by sensor type.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// User mirrors an identity-provider subject into the permissions store.
// Rows are created lazily on first authenticated request.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// Dataset is a registered time-series entity. Name doubles as the upstream
// metric identifier; SensorType enables type-level grants.
type Dataset struct {
	ID           int64     `json:"id"`
	EntityID     string    `json:"entity_id"`
	EntityTypeID string    `json:"entity_type_id"`
	Name         string    `json:"name"`
	SensorType   string    `json:"sensor_type"`
	Sensors      []string  `json:"sensors"`
	CreatedAt    time.Time `json:"created_at"`
}

// App is a user-owned application namespace. The owner always has access;
// further access is granted per user or per group.
type App struct {
	ID        string    `json:"app_id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the authenticated caller derived from a validated token.
type Principal struct {
	Subject  string   `json:"subject"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// HoldsGroup reports whether the principal is a member of the named group.
// Comparison is case-sensitive.
func (p Principal) HoldsGroup(name string) bool {
	for _, g := range p.Groups {
		if g == name {
			return true
		}
	}
	return false
}
