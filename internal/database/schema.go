// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

/*
schema.go - Permissions Schema

Tables:
  - groups:              named permission groups
  - users:               identity-provider subjects, created lazily
  - user_groups:         group membership (user N:M group)
  - datasets:            registered time-series entities
  - group_datasets:      direct dataset grants to groups
  - group_dataset_types: sensor-type grants to groups
  - apps:                user-owned application namespaces
  - app_users:           direct app grants to users
  - app_groups:          app grants to groups

All link tables carry UNIQUE constraints so grant operations are idempotent
at the insert level (INSERT ... ON CONFLICT DO NOTHING). Deduplication of
access results happens in SQL via UNION, never in Go.
*/

package database

import "fmt"

// createTables creates all permission tables and indexes if they do not exist.
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			subject TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS user_groups (
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, group_id)
		);`,

		`CREATE TABLE IF NOT EXISTS datasets (
			id INTEGER PRIMARY KEY,
			entity_id TEXT NOT NULL,
			entity_type_id TEXT NOT NULL,
			name TEXT NOT NULL UNIQUE,
			sensor_type TEXT NOT NULL,
			sensors TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(entity_type_id, entity_id)
		);`,

		`CREATE TABLE IF NOT EXISTS group_datasets (
			group_id INTEGER NOT NULL,
			dataset_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(group_id, dataset_id)
		);`,

		`CREATE TABLE IF NOT EXISTS group_dataset_types (
			group_id INTEGER NOT NULL,
			sensor_type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(group_id, sensor_type)
		);`,

		`CREATE TABLE IF NOT EXISTS apps (
			app_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS app_users (
			app_id TEXT NOT NULL,
			username TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(app_id, username)
		);`,

		`CREATE TABLE IF NOT EXISTS app_groups (
			app_id TEXT NOT NULL,
			group_name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(app_id, group_name)
		);`,
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_user_groups_user ON user_groups(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_groups_group ON user_groups(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_group_datasets_group ON group_datasets(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_group_dataset_types_group ON group_dataset_types(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_sensor_type ON datasets(sensor_type);`,
		`CREATE INDEX IF NOT EXISTS idx_apps_owner ON apps(owner);`,
		`CREATE INDEX IF NOT EXISTS idx_app_users_username ON app_users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_app_groups_group ON app_groups(group_name);`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, q := range indexes {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
