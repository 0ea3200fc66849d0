// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package access resolves what a principal may reach.
//
// The Resolver answers two questions for datasets and apps alike: "what can
// this principal see" and "can this principal reach this one resource".
// Membership in the bypass group short-circuits every check. Resolution is
// stateless: every call goes to the store, there is no grant cache, so a
// revoke takes effect on the next request.
package access

import (
	"context"
	"errors"

	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/models"
)

// DefaultBypassGroup is the group whose members skip all access checks.
const DefaultBypassGroup = "datagate_admins"

// Store is the subset of the permissions store the resolver needs.
type Store interface {
	ListDatasets(ctx context.Context) ([]models.Dataset, error)
	ListDatasetsForGroups(ctx context.Context, groups []string) ([]models.Dataset, error)
	GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error)

	ListApps(ctx context.Context) ([]models.App, error)
	ListAccessibleApps(ctx context.Context, username string, groups []string) ([]models.App, error)
	GetApp(ctx context.Context, appID string) (*models.App, error)
}

// Resolver decides dataset and app access for principals.
type Resolver struct {
	store       Store
	bypassGroup string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBypassGroup overrides the admin bypass group name.
func WithBypassGroup(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.bypassGroup = name
		}
	}
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		bypassGroup: DefaultBypassGroup,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// bypass reports whether the principal skips access checks entirely.
func (r *Resolver) bypass(p models.Principal) bool {
	return p.HoldsGroup(r.bypassGroup)
}

// ListAccessibleDatasets returns every dataset the principal may query.
// Bypass-group members get all datasets without touching the grant tables.
func (r *Resolver) ListAccessibleDatasets(ctx context.Context, p models.Principal) ([]models.Dataset, error) {
	if r.bypass(p) {
		return r.store.ListDatasets(ctx)
	}
	return r.store.ListDatasetsForGroups(ctx, p.Groups)
}

// ListAccessibleApps returns every app the principal may reach: owned,
// directly granted, or granted via group membership.
func (r *Resolver) ListAccessibleApps(ctx context.Context, p models.Principal) ([]models.App, error) {
	if r.bypass(p) {
		return r.store.ListApps(ctx)
	}
	return r.store.ListAccessibleApps(ctx, p.Username, p.Groups)
}

// CheckDatasetAccess reports whether the principal may query the named
// dataset. An unknown dataset is a denial, not an error: (false, nil).
// A store failure is (false, err) so callers never conflate an outage
// with a permission decision.
func (r *Resolver) CheckDatasetAccess(ctx context.Context, p models.Principal, name string) (bool, error) {
	_, err := r.store.GetDatasetByName(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.bypass(p) {
		return true, nil
	}

	datasets, err := r.store.ListDatasetsForGroups(ctx, p.Groups)
	if err != nil {
		return false, err
	}
	for _, d := range datasets {
		if d.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CheckAppAccess reports whether the principal may use the given app.
// Same contract as CheckDatasetAccess: unknown app is (false, nil),
// store failure is (false, err).
func (r *Resolver) CheckAppAccess(ctx context.Context, p models.Principal, appID string) (bool, error) {
	app, err := r.store.GetApp(ctx, appID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.bypass(p) || app.Owner == p.Username {
		return true, nil
	}

	apps, err := r.store.ListAccessibleApps(ctx, p.Username, p.Groups)
	if err != nil {
		return false, err
	}
	for _, a := range apps {
		if a.ID == appID {
			return true, nil
		}
	}
	return false, nil
}
