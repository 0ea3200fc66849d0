// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package idp

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryAdmin is an in-memory Admin implementation. It mirrors the group
// membership the permissions store already tracks and exists so admin
// endpoints keep working when no external IdP admin API is wired.
type MemoryAdmin struct {
	mu     sync.RWMutex
	groups map[string]map[string]bool // group -> set of usernames
}

// NewMemoryAdmin creates an empty in-memory group administrator.
func NewMemoryAdmin() *MemoryAdmin {
	return &MemoryAdmin{
		groups: make(map[string]map[string]bool),
	}
}

// EnsureGroup creates the group if missing.
func (a *MemoryAdmin) EnsureGroup(group string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.groups[group] == nil {
		a.groups[group] = make(map[string]bool)
	}
}

// AddUserToGroup adds a member, creating the group on first use.
func (a *MemoryAdmin) AddUserToGroup(ctx context.Context, username, group string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.groups[group] == nil {
		a.groups[group] = make(map[string]bool)
	}
	a.groups[group][username] = true
	return nil
}

// RemoveUserFromGroup removes a member. Unknown groups are an error;
// removing a non-member is a no-op.
func (a *MemoryAdmin) RemoveUserFromGroup(ctx context.Context, username, group string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	members, ok := a.groups[group]
	if !ok {
		return fmt.Errorf("group %q does not exist", group)
	}
	delete(members, username)
	return nil
}

// ListGroups returns all group names sorted.
func (a *MemoryAdmin) ListGroups(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.groups))
	for name := range a.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListMembership returns the groups the user belongs to, sorted.
func (a *MemoryAdmin) ListMembership(ctx context.Context, username string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var names []string
	for name, members := range a.groups {
		if members[username] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
