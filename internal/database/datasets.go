// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

/*
datasets.go - Dataset Registration and Grant Operations

Key Operations:
  - CreateDataset: register a dataset (unique name and (entity_type, entity))
  - GetDatasetByName / ListDatasets
  - GrantDatasetToGroup / RevokeDatasetFromGroup: direct grants
  - GrantDatasetTypeToGroup / RevokeDatasetTypeFromGroup: sensor-type grants
  - ListDatasetsForGroups: direct + type grants, UNION-deduplicated in SQL
  - ListGroupsForDataset: reverse lookup for grant administration

Grant semantics: a group reaches a dataset either through a direct grant row
or because the group holds a grant on the dataset's sensor type. Both paths
are combined with UNION so a dataset reachable both ways appears once.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/models"
)

// scanDatasetRow scans a database row into a Dataset struct. The sensor
// list is stored as a JSON array in the sensors column.
func scanDatasetRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Dataset, error) {
	d := &models.Dataset{}
	var sensors string
	err := scanner.Scan(&d.ID, &d.EntityID, &d.EntityTypeID, &d.Name, &d.SensorType, &sensors, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sensors), &d.Sensors); err != nil {
		return nil, fmt.Errorf("failed to decode sensors for dataset %q: %w", d.Name, err)
	}
	return d, nil
}

const datasetColumns = `id, entity_id, entity_type_id, name, sensor_type, sensors, created_at`

// CreateDataset registers a dataset. Returns ErrAlreadyExists when the name
// or the (entity_type_id, entity_id) pair is already registered.
func (db *DB) CreateDataset(ctx context.Context, d *models.Dataset) (int64, error) {
	idMutex.Lock()
	defer idMutex.Unlock()

	var existing int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM datasets WHERE name = ? OR (entity_type_id = ? AND entity_id = ?)`,
		d.Name, d.EntityTypeID, d.EntityID).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("dataset %q: %w", d.Name, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check dataset existence: %w", err)
	}

	id, err := db.nextID(ctx, "datasets")
	if err != nil {
		return 0, err
	}

	sensors := []byte("[]")
	if len(d.Sensors) > 0 {
		if sensors, err = json.Marshal(d.Sensors); err != nil {
			return 0, fmt.Errorf("failed to encode sensors: %w", err)
		}
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO datasets (id, entity_id, entity_type_id, name, sensor_type, sensors) VALUES (?, ?, ?, ?, ?, ?)`,
		id, d.EntityID, d.EntityTypeID, d.Name, d.SensorType, string(sensors))
	if err != nil {
		return 0, fmt.Errorf("failed to create dataset: %w", err)
	}

	return id, nil
}

// GetDatasetByName returns a dataset by its registered name. Returns
// ErrNotFound when no dataset carries the name.
func (db *DB) GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE name = ?`, name)

	d, err := scanDatasetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return d, nil
}

// ListDatasets returns all registered datasets ordered by name.
func (db *DB) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer closeQuietly(rows)

	return collectDatasets(rows)
}

// GrantDatasetToGroup grants a group direct access to a dataset. Idempotent.
func (db *DB) GrantDatasetToGroup(ctx context.Context, groupName, datasetName string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}
	d, err := db.GetDatasetByName(ctx, datasetName)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO group_datasets (group_id, dataset_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		groupID, d.ID)
	if err != nil {
		return fmt.Errorf("failed to grant dataset to group: %w", err)
	}
	return nil
}

// RevokeDatasetFromGroup removes a direct dataset grant. Revoking an absent
// grant is a no-op.
func (db *DB) RevokeDatasetFromGroup(ctx context.Context, groupName, datasetName string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`DELETE FROM group_datasets
		 WHERE group_id = ? AND dataset_id = (SELECT id FROM datasets WHERE name = ?)`,
		groupID, datasetName)
	if err != nil {
		return fmt.Errorf("failed to revoke dataset from group: %w", err)
	}
	return nil
}

// GrantDatasetTypeToGroup grants a group access to every dataset of the
// given sensor type, current and future. Idempotent: duplicate grants are
// silent no-ops.
func (db *DB) GrantDatasetTypeToGroup(ctx context.Context, groupName, sensorType string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO group_dataset_types (group_id, sensor_type) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		groupID, sensorType)
	if err != nil {
		return fmt.Errorf("failed to grant sensor type to group: %w", err)
	}
	return nil
}

// RevokeDatasetTypeFromGroup removes a sensor-type grant.
func (db *DB) RevokeDatasetTypeFromGroup(ctx context.Context, groupName, sensorType string) error {
	groupID, err := db.GetGroupID(ctx, groupName)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`DELETE FROM group_dataset_types WHERE group_id = ? AND sensor_type = ?`,
		groupID, sensorType)
	if err != nil {
		return fmt.Errorf("failed to revoke sensor type from group: %w", err)
	}
	return nil
}

// ListDatasetsForGroups returns the datasets reachable from any of the given
// groups, through direct grants or sensor-type grants. The UNION deduplicates
// datasets reachable through multiple paths or multiple groups; duplicate
// group names in the input cannot double-count.
func (db *DB) ListDatasetsForGroups(ctx context.Context, groupNames []string) ([]models.Dataset, error) {
	if len(groupNames) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groupNames)), ",")
	query := `
		SELECT d.id, d.entity_id, d.entity_type_id, d.name, d.sensor_type, d.sensors, d.created_at
		FROM datasets d
		JOIN group_datasets gd ON gd.dataset_id = d.id
		JOIN groups g ON g.id = gd.group_id
		WHERE g.name IN (` + placeholders + `)
		UNION
		SELECT d.id, d.entity_id, d.entity_type_id, d.name, d.sensor_type, d.sensors, d.created_at
		FROM datasets d
		JOIN group_dataset_types gdt ON gdt.sensor_type = d.sensor_type
		JOIN groups g ON g.id = gdt.group_id
		WHERE g.name IN (` + placeholders + `)
		ORDER BY name`

	args := make([]interface{}, 0, 2*len(groupNames))
	for _, n := range groupNames {
		args = append(args, n)
	}
	for _, n := range groupNames {
		args = append(args, n)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets for groups: %w", err)
	}
	defer closeQuietly(rows)

	return collectDatasets(rows)
}

// ListGroupsForDataset returns the groups holding a direct grant on the
// dataset. Returns ErrNotFound when the dataset does not exist.
func (db *DB) ListGroupsForDataset(ctx context.Context, datasetName string) ([]models.Group, error) {
	d, err := db.GetDatasetByName(ctx, datasetName)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT g.id, g.name, g.description, g.created_at
		 FROM groups g
		 JOIN group_datasets gd ON gd.group_id = g.id
		 WHERE gd.dataset_id = ?
		 ORDER BY g.name`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for dataset: %w", err)
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

func collectDatasets(rows *sql.Rows) ([]models.Dataset, error) {
	var datasets []models.Dataset
	for rows.Next() {
		d, err := scanDatasetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}
