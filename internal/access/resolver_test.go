// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package access

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/models"
)

// fakeStore is an in-memory Store with grant maps keyed by group name.
type fakeStore struct {
	datasets      []models.Dataset
	apps          []models.App
	directGrants  map[string][]string // group -> dataset names
	typeGrants    map[string][]string // group -> sensor types
	appUserGrants map[string][]string // username -> app IDs
	appGroupGrant map[string][]string // group -> app IDs

	failListForGroups bool
	failGetDataset    bool

	listForGroupsCalls int
}

func (s *fakeStore) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	return s.datasets, nil
}

func (s *fakeStore) ListDatasetsForGroups(ctx context.Context, groups []string) ([]models.Dataset, error) {
	s.listForGroupsCalls++
	if s.failListForGroups {
		return nil, fmt.Errorf("store unavailable")
	}

	seen := map[string]bool{}
	var out []models.Dataset
	add := func(d models.Dataset) {
		if !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d)
		}
	}
	for _, g := range groups {
		for _, name := range s.directGrants[g] {
			for _, d := range s.datasets {
				if d.Name == name {
					add(d)
				}
			}
		}
		for _, st := range s.typeGrants[g] {
			for _, d := range s.datasets {
				if d.SensorType == st {
					add(d)
				}
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error) {
	if s.failGetDataset {
		return nil, fmt.Errorf("store unavailable")
	}
	for i := range s.datasets {
		if s.datasets[i].Name == name {
			return &s.datasets[i], nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", name, database.ErrNotFound)
}

func (s *fakeStore) ListApps(ctx context.Context) ([]models.App, error) {
	return s.apps, nil
}

func (s *fakeStore) ListAccessibleApps(ctx context.Context, username string, groups []string) ([]models.App, error) {
	seen := map[string]bool{}
	var out []models.App
	add := func(a models.App) {
		if !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	for _, a := range s.apps {
		if a.Owner == username {
			add(a)
		}
	}
	for _, id := range s.appUserGrants[username] {
		for _, a := range s.apps {
			if a.ID == id {
				add(a)
			}
		}
	}
	for _, g := range groups {
		for _, id := range s.appGroupGrant[g] {
			for _, a := range s.apps {
				if a.ID == id {
					add(a)
				}
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetApp(ctx context.Context, appID string) (*models.App, error) {
	for i := range s.apps {
		if s.apps[i].ID == appID {
			return &s.apps[i], nil
		}
	}
	return nil, fmt.Errorf("app %q: %w", appID, database.ErrNotFound)
}

func newTestStore() *fakeStore {
	return &fakeStore{
		datasets: []models.Dataset{
			{ID: 1, Name: "river1.level", SensorType: "water_level"},
			{ID: 2, Name: "river2.level", SensorType: "water_level"},
			{ID: 3, Name: "air1.temp", SensorType: "air_temp"},
		},
		apps: []models.App{
			{ID: "app-1", Owner: "alice", Name: "Flood Monitor"},
			{ID: "app-2", Owner: "bob", Name: "Air Quality"},
		},
		directGrants:  map[string][]string{},
		typeGrants:    map[string][]string{},
		appUserGrants: map[string][]string{},
		appGroupGrant: map[string][]string{},
	}
}

func TestListAccessibleDatasets(t *testing.T) {
	ctx := context.Background()

	t.Run("bypass group returns all datasets", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store)

		p := models.Principal{Username: "root", Groups: []string{DefaultBypassGroup}}
		datasets, err := r.ListAccessibleDatasets(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleDatasets failed: %v", err)
		}
		if len(datasets) != 3 {
			t.Errorf("expected all 3 datasets for bypass, got %d", len(datasets))
		}
		if store.listForGroupsCalls != 0 {
			t.Errorf("bypass must not consult grant tables, got %d calls", store.listForGroupsCalls)
		}
	})

	t.Run("custom bypass group honored", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store, WithBypassGroup("ops"))

		p := models.Principal{Username: "root", Groups: []string{"ops"}}
		datasets, err := r.ListAccessibleDatasets(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleDatasets failed: %v", err)
		}
		if len(datasets) != 3 {
			t.Errorf("expected all datasets via custom bypass group, got %d", len(datasets))
		}
	})

	t.Run("union of direct and type grants deduplicated", func(t *testing.T) {
		store := newTestStore()
		store.directGrants["hydro"] = []string{"river1.level"}
		store.typeGrants["hydro"] = []string{"water_level"}
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		datasets, err := r.ListAccessibleDatasets(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleDatasets failed: %v", err)
		}
		if len(datasets) != 2 {
			t.Errorf("expected 2 deduplicated datasets, got %d: %+v", len(datasets), datasets)
		}
	})

	t.Run("no groups yields no datasets", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store)

		p := models.Principal{Username: "nobody"}
		datasets, err := r.ListAccessibleDatasets(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleDatasets failed: %v", err)
		}
		if len(datasets) != 0 {
			t.Errorf("expected no datasets, got %+v", datasets)
		}
	})
}

func TestCheckDatasetAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("granted via type", func(t *testing.T) {
		store := newTestStore()
		store.typeGrants["hydro"] = []string{"water_level"}
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		ok, err := r.CheckDatasetAccess(ctx, p, "river2.level")
		if err != nil {
			t.Fatalf("CheckDatasetAccess failed: %v", err)
		}
		if !ok {
			t.Error("expected access via type grant")
		}
	})

	t.Run("denied without grant", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		ok, err := r.CheckDatasetAccess(ctx, p, "air1.temp")
		if err != nil {
			t.Fatalf("CheckDatasetAccess failed: %v", err)
		}
		if ok {
			t.Error("expected denial without grant")
		}
	})

	t.Run("unknown dataset is denial not error", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		ok, err := r.CheckDatasetAccess(ctx, p, "no.such.dataset")
		if err != nil {
			t.Fatalf("expected nil error for unknown dataset, got %v", err)
		}
		if ok {
			t.Error("expected denial for unknown dataset")
		}
	})

	t.Run("store failure is error not denial", func(t *testing.T) {
		store := newTestStore()
		store.failListForGroups = true
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		ok, err := r.CheckDatasetAccess(ctx, p, "river1.level")
		if err == nil {
			t.Fatal("expected error when store fails")
		}
		if ok {
			t.Error("expected ok=false on store failure")
		}
	})

	t.Run("lookup failure surfaces as error", func(t *testing.T) {
		store := newTestStore()
		store.failGetDataset = true
		r := NewResolver(store)

		p := models.Principal{Username: "alice", Groups: []string{"hydro"}}
		_, err := r.CheckDatasetAccess(ctx, p, "river1.level")
		if err == nil {
			t.Fatal("expected error when dataset lookup fails")
		}
		if errors.Is(err, database.ErrNotFound) {
			t.Error("store failure must not look like NotFound")
		}
	})

	t.Run("bypass grants any existing dataset", func(t *testing.T) {
		store := newTestStore()
		r := NewResolver(store)

		p := models.Principal{Username: "root", Groups: []string{DefaultBypassGroup}}
		ok, err := r.CheckDatasetAccess(ctx, p, "air1.temp")
		if err != nil {
			t.Fatalf("CheckDatasetAccess failed: %v", err)
		}
		if !ok {
			t.Error("expected bypass access")
		}

		// But not a dataset that does not exist.
		ok, err = r.CheckDatasetAccess(ctx, p, "ghost")
		if err != nil {
			t.Fatalf("CheckDatasetAccess failed: %v", err)
		}
		if ok {
			t.Error("bypass must not grant unknown datasets")
		}
	})
}

func TestCheckAppAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("owner always has access", func(t *testing.T) {
		r := NewResolver(newTestStore())

		p := models.Principal{Username: "alice"}
		ok, err := r.CheckAppAccess(ctx, p, "app-1")
		if err != nil {
			t.Fatalf("CheckAppAccess failed: %v", err)
		}
		if !ok {
			t.Error("expected owner access")
		}
	})

	t.Run("direct user grant", func(t *testing.T) {
		store := newTestStore()
		store.appUserGrants["alice"] = []string{"app-2"}
		r := NewResolver(store)

		p := models.Principal{Username: "alice"}
		ok, err := r.CheckAppAccess(ctx, p, "app-2")
		if err != nil {
			t.Fatalf("CheckAppAccess failed: %v", err)
		}
		if !ok {
			t.Error("expected access via user grant")
		}
	})

	t.Run("group grant", func(t *testing.T) {
		store := newTestStore()
		store.appGroupGrant["sensor_team"] = []string{"app-2"}
		r := NewResolver(store)

		p := models.Principal{Username: "carol", Groups: []string{"sensor_team"}}
		ok, err := r.CheckAppAccess(ctx, p, "app-2")
		if err != nil {
			t.Fatalf("CheckAppAccess failed: %v", err)
		}
		if !ok {
			t.Error("expected access via group grant")
		}
	})

	t.Run("unknown app is denial not error", func(t *testing.T) {
		r := NewResolver(newTestStore())

		p := models.Principal{Username: "alice"}
		ok, err := r.CheckAppAccess(ctx, p, "ghost")
		if err != nil {
			t.Fatalf("expected nil error for unknown app, got %v", err)
		}
		if ok {
			t.Error("expected denial for unknown app")
		}
	})

	t.Run("no grant denied", func(t *testing.T) {
		r := NewResolver(newTestStore())

		p := models.Principal{Username: "carol"}
		ok, err := r.CheckAppAccess(ctx, p, "app-1")
		if err != nil {
			t.Fatalf("CheckAppAccess failed: %v", err)
		}
		if ok {
			t.Error("expected denial")
		}
	})
}

func TestListAccessibleApps(t *testing.T) {
	ctx := context.Background()

	t.Run("bypass returns all apps", func(t *testing.T) {
		r := NewResolver(newTestStore())

		p := models.Principal{Username: "root", Groups: []string{DefaultBypassGroup}}
		apps, err := r.ListAccessibleApps(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleApps failed: %v", err)
		}
		if len(apps) != 2 {
			t.Errorf("expected all apps, got %d", len(apps))
		}
	})

	t.Run("owner plus grants deduplicated", func(t *testing.T) {
		store := newTestStore()
		store.appUserGrants["alice"] = []string{"app-1", "app-2"}
		r := NewResolver(store)

		p := models.Principal{Username: "alice"}
		apps, err := r.ListAccessibleApps(ctx, p)
		if err != nil {
			t.Fatalf("ListAccessibleApps failed: %v", err)
		}
		if len(apps) != 2 {
			t.Errorf("expected 2 deduplicated apps, got %d: %+v", len(apps), apps)
		}
	})
}
