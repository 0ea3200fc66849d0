// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package database

import (
	"errors"
	"testing"
)

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext(t)

	t.Run("creates group", func(t *testing.T) {
		id, err := db.CreateGroup(ctx, "hydrology", "river sensor readers")
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if id == 0 {
			t.Error("expected non-zero group ID")
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := db.CreateGroup(ctx, "hydrology", "")
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("GetGroupID resolves", func(t *testing.T) {
		id, err := db.GetGroupID(ctx, "hydrology")
		if err != nil {
			t.Fatalf("GetGroupID failed: %v", err)
		}
		if id == 0 {
			t.Error("expected non-zero ID")
		}
	})

	t.Run("GetGroupID unknown group", func(t *testing.T) {
		_, err := db.GetGroupID(ctx, "no_such_group")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGroupMembership(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext(t)

	if _, err := db.CreateGroup(ctx, "hydro_readers", ""); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	t.Run("EnsureUser is idempotent", func(t *testing.T) {
		id1, err := db.EnsureUser(ctx, "alice", "sub-alice")
		if err != nil {
			t.Fatalf("EnsureUser failed: %v", err)
		}
		id2, err := db.EnsureUser(ctx, "alice", "sub-alice")
		if err != nil {
			t.Fatalf("second EnsureUser failed: %v", err)
		}
		if id1 != id2 {
			t.Errorf("expected same user ID, got %d and %d", id1, id2)
		}
	})

	t.Run("AddUserToGroup is idempotent", func(t *testing.T) {
		if err := db.AddUserToGroup(ctx, "alice", "hydro_readers"); err != nil {
			t.Fatalf("AddUserToGroup failed: %v", err)
		}
		if err := db.AddUserToGroup(ctx, "alice", "hydro_readers"); err != nil {
			t.Fatalf("repeated AddUserToGroup failed: %v", err)
		}

		users, err := db.ListUsersInGroup(ctx, "hydro_readers")
		if err != nil {
			t.Fatalf("ListUsersInGroup failed: %v", err)
		}
		if len(users) != 1 {
			t.Errorf("expected 1 member, got %d", len(users))
		}
	})

	t.Run("AddUserToGroup unknown group", func(t *testing.T) {
		err := db.AddUserToGroup(ctx, "alice", "no_such_group")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListGroupsForUser", func(t *testing.T) {
		groups, err := db.ListGroupsForUser(ctx, "alice")
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 1 || groups[0].Name != "hydro_readers" {
			t.Errorf("expected [hydro_readers], got %+v", groups)
		}
	})

	t.Run("RemoveUserFromGroup", func(t *testing.T) {
		if err := db.RemoveUserFromGroup(ctx, "alice", "hydro_readers"); err != nil {
			t.Fatalf("RemoveUserFromGroup failed: %v", err)
		}
		groups, err := db.ListGroupsForUser(ctx, "alice")
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 0 {
			t.Errorf("expected no memberships, got %+v", groups)
		}

		// Removing again is a no-op.
		if err := db.RemoveUserFromGroup(ctx, "alice", "hydro_readers"); err != nil {
			t.Errorf("repeated removal should be a no-op, got %v", err)
		}
	})
}

func TestListGroups(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := db.CreateGroup(ctx, name, ""); err != nil {
			t.Fatalf("CreateGroup(%s) failed: %v", name, err)
		}
	}

	groups, err := db.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].Name != "alpha" || groups[2].Name != "zeta" {
		t.Errorf("expected name ordering, got %+v", groups)
	}
}
