// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

/*
groups.go - Group and Membership Operations

Key Operations:
  - CreateGroup / GetGroupID / ListGroups
  - EnsureUser: lazy user creation on first authenticated request
  - AddUserToGroup / RemoveUserFromGroup: idempotent membership management
  - ListGroupsForUser / ListUsersInGroup

Thread Safety:
Row IDs are allocated MAX(id)+1 under a package mutex since DuckDB has no
auto-increment; concurrent creates otherwise race on the same ID.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sensorlab/datagate/internal/models"
)

// idMutex serializes ID allocation for inserts into integer-keyed tables.
var idMutex sync.Mutex

// nextID returns MAX(id)+1 for the given table. Callers must hold idMutex
// across allocation and insert.
func (db *DB) nextID(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) + 1 FROM %s`, table) //nolint:gosec // table names are compile-time constants

	var nextID int64
	if err := db.conn.QueryRowContext(ctx, query).Scan(&nextID); err != nil {
		return 0, fmt.Errorf("failed to get next ID for %s: %w", table, err)
	}
	return nextID, nil
}

// scanGroupRow scans a database row into a Group struct.
func scanGroupRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Group, error) {
	group := &models.Group{}
	var description sql.NullString

	if err := scanner.Scan(&group.ID, &group.Name, &description, &group.CreatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		group.Description = description.String
	}
	return group, nil
}

// CreateGroup creates a new permission group. Returns ErrAlreadyExists when
// a group with the same name exists.
func (db *DB) CreateGroup(ctx context.Context, name, description string) (int64, error) {
	idMutex.Lock()
	defer idMutex.Unlock()

	var existing int64
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = ?`, name).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("group %q: %w", name, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check group existence: %w", err)
	}

	id, err := db.nextID(ctx, "groups")
	if err != nil {
		return 0, err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO groups (id, name, description) VALUES (?, ?, ?)`,
		id, name, description)
	if err != nil {
		return 0, fmt.Errorf("failed to create group: %w", err)
	}

	return id, nil
}

// GetGroupID resolves a group name to its ID. Returns ErrNotFound when the
// group does not exist.
func (db *DB) GetGroupID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get group: %w", err)
	}
	return id, nil
}

// ListGroups returns all groups ordered by name.
func (db *DB) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer closeQuietly(rows)

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// EnsureUser creates the user row if it does not exist and returns its ID.
// Called lazily on first authenticated request; idempotent.
func (db *DB) EnsureUser(ctx context.Context, username, subject string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	idMutex.Lock()
	defer idMutex.Unlock()

	id, err = db.nextID(ctx, "users")
	if err != nil {
		return 0, err
	}

	// A concurrent EnsureUser may have won the race; the UNIQUE constraint
	// keeps the table consistent and the re-read below returns the winner.
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, subject) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		id, username, subject)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to re-read user: %w", err)
	}
	return id, nil
}

// AddUserToGroup adds a user to a group, creating the user row if needed.
// Idempotent: adding an existing member is a no-op.
func (db *DB) AddUserToGroup(ctx context.Context, username, groupName string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}

	userID, err := db.EnsureUser(ctx, username, "")
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO user_groups (user_id, group_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

// RemoveUserFromGroup removes a user's group membership. Removing an absent
// membership is a no-op.
func (db *DB) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`DELETE FROM user_groups
		 WHERE group_id = ? AND user_id = (SELECT id FROM users WHERE username = ?)`,
		groupID, username)
	if err != nil {
		return fmt.Errorf("failed to remove user from group: %w", err)
	}
	return nil
}

// ListGroupsForUser returns the groups the user is a member of.
func (db *DB) ListGroupsForUser(ctx context.Context, username string) ([]models.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT g.id, g.name, g.description, g.created_at
		 FROM groups g
		 JOIN user_groups ug ON ug.group_id = g.id
		 JOIN users u ON u.id = ug.user_id
		 WHERE u.username = ?
		 ORDER BY g.name`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for user: %w", err)
	}
	defer closeQuietly(rows)

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// ListUsersInGroup returns the members of a group. Returns ErrNotFound when
// the group does not exist.
func (db *DB) ListUsersInGroup(ctx context.Context, groupName string) ([]models.User, error) {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.username, u.subject, u.created_at
		 FROM users u
		 JOIN user_groups ug ON ug.user_id = u.id
		 WHERE ug.group_id = ?
		 ORDER BY u.username`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users in group: %w", err)
	}
	defer closeQuietly(rows)

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Subject, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
