// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

/*
apps.go - Application Namespace Operations

Apps are user-owned namespaces for time-series data. The owner always has
access; additional access is granted per user or per group.

Key Operations:
  - CreateApp / GetApp / ListApps / ListAppsOwnedBy
  - GrantAppToUser / RevokeAppFromUser (reports whether a row changed)
  - GrantAppToGroup / RevokeAppFromGroup / ListAppUsers / ListAppGroups
  - ListAccessibleApps: owner + user grants + group grants, UNION-deduplicated
  - SearchApps: name substring match
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sensorlab/datagate/internal/models"
)

const appColumns = `app_id, owner, name, created_at`

func scanAppRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.App, error) {
	a := &models.App{}
	if err := scanner.Scan(&a.ID, &a.Owner, &a.Name, &a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateApp registers an app. Returns ErrAlreadyExists when the app ID is
// already taken.
func (db *DB) CreateApp(ctx context.Context, a *models.App) error {
	var existing string
	err := db.conn.QueryRowContext(ctx, `SELECT app_id FROM apps WHERE app_id = ?`, a.ID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("app %q: %w", a.ID, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check app existence: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO apps (app_id, owner, name) VALUES (?, ?, ?)`,
		a.ID, a.Owner, a.Name)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

// GetApp returns an app by ID. Returns ErrNotFound when it does not exist.
func (db *DB) GetApp(ctx context.Context, appID string) (*models.App, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE app_id = ?`, appID)

	a, err := scanAppRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %q: %w", appID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return a, nil
}

// ListApps returns all registered apps ordered by name.
func (db *DB) ListApps(ctx context.Context) ([]models.App, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer closeQuietly(rows)

	return collectApps(rows)
}

// ListAppsOwnedBy returns the apps owned by the given user.
func (db *DB) ListAppsOwnedBy(ctx context.Context, username string) ([]models.App, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE owner = ? ORDER BY name`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned apps: %w", err)
	}
	defer closeQuietly(rows)

	return collectApps(rows)
}

// GrantAppToUser grants a user access to an app. Returns true when a new
// grant row was written, false when the grant already existed. Returns
// ErrNotFound when the app does not exist.
func (db *DB) GrantAppToUser(ctx context.Context, appID, username string) (bool, error) {
	if _, err := db.GetApp(ctx, appID); err != nil {
		return false, err
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO app_users (app_id, username) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		appID, username)
	if err != nil {
		return false, fmt.Errorf("failed to grant app to user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// RevokeAppFromUser removes a user's app grant. Returns true when a grant
// row was removed.
func (db *DB) RevokeAppFromUser(ctx context.Context, appID, username string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM app_users WHERE app_id = ? AND username = ?`, appID, username)
	if err != nil {
		return false, fmt.Errorf("failed to revoke app from user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GrantAppToGroup grants every member of a group access to an app.
// Returns true when a new grant row was written. Returns ErrNotFound when
// the app or the group does not exist.
func (db *DB) GrantAppToGroup(ctx context.Context, appID, groupName string) (bool, error) {
	if _, err := db.GetApp(ctx, appID); err != nil {
		return false, err
	}
	if _, err := db.GetGroupID(ctx, groupName); err != nil {
		return false, err
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO app_groups (app_id, group_name) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		appID, groupName)
	if err != nil {
		return false, fmt.Errorf("failed to grant app to group: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// RevokeAppFromGroup removes a group's app grant. Returns true when a
// grant row was removed.
func (db *DB) RevokeAppFromGroup(ctx context.Context, appID, groupName string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM app_groups WHERE app_id = ? AND group_name = ?`, appID, groupName)
	if err != nil {
		return false, fmt.Errorf("failed to revoke app from group: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAppGroups returns the group names holding a grant on an app.
// Returns ErrNotFound when the app does not exist.
func (db *DB) ListAppGroups(ctx context.Context, appID string) ([]string, error) {
	if _, err := db.GetApp(ctx, appID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT group_name FROM app_groups WHERE app_id = ? ORDER BY group_name`, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list app groups: %w", err)
	}
	defer closeQuietly(rows)

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group name: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListAppUsers returns the usernames holding a direct grant on an app.
// Returns ErrNotFound when the app does not exist.
func (db *DB) ListAppUsers(ctx context.Context, appID string) ([]string, error) {
	if _, err := db.GetApp(ctx, appID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT username FROM app_users WHERE app_id = ? ORDER BY username`, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list app users: %w", err)
	}
	defer closeQuietly(rows)

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListAccessibleApps returns the apps the user can reach: owned, directly
// granted, or granted through any of the user's groups. UNION deduplicates
// apps reachable through multiple paths.
func (db *DB) ListAccessibleApps(ctx context.Context, username string, groups []string) ([]models.App, error) {
	query := `
		SELECT ` + appColumns + ` FROM apps WHERE owner = ?
		UNION
		SELECT a.app_id, a.owner, a.name, a.created_at
		FROM apps a
		JOIN app_users au ON au.app_id = a.app_id
		WHERE au.username = ?`
	args := []interface{}{username, username}

	if len(groups) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groups)), ",")
		query += `
		UNION
		SELECT a.app_id, a.owner, a.name, a.created_at
		FROM apps a
		JOIN app_groups ag ON ag.app_id = a.app_id
		WHERE ag.group_name IN (` + placeholders + `)`
		for _, g := range groups {
			args = append(args, g)
		}
	}
	query += `
		ORDER BY name`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible apps: %w", err)
	}
	defer closeQuietly(rows)

	return collectApps(rows)
}

// SearchApps returns apps whose name contains the query substring,
// case-insensitive, capped at limit rows.
func (db *DB) SearchApps(ctx context.Context, query string, limit int) ([]models.App, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps
		 WHERE name ILIKE '%' || ? || '%'
		 ORDER BY name
		 LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search apps: %w", err)
	}
	defer closeQuietly(rows)

	return collectApps(rows)
}

func collectApps(rows *sql.Rows) ([]models.App, error) {
	var apps []models.App
	for rows.Next() {
		a, err := scanAppRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}
