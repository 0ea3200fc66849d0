// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/export"
	"github.com/sensorlab/datagate/internal/idp"
	"github.com/sensorlab/datagate/internal/middleware"
	"github.com/sensorlab/datagate/internal/models"
	"github.com/sensorlab/datagate/internal/tsdb"
)

// Store is the slice of the permissions database the handlers need.
// *database.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	CreateGroup(ctx context.Context, name, description string) (int64, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	AddUserToGroup(ctx context.Context, username, groupName string) error
	RemoveUserFromGroup(ctx context.Context, username, groupName string) error
	ListUsersInGroup(ctx context.Context, groupName string) ([]models.User, error)

	CreateDataset(ctx context.Context, d *models.Dataset) (int64, error)
	GetDatasetByName(ctx context.Context, name string) (*models.Dataset, error)
	GrantDatasetToGroup(ctx context.Context, groupName, datasetName string) error
	RevokeDatasetFromGroup(ctx context.Context, groupName, datasetName string) error
	GrantDatasetTypeToGroup(ctx context.Context, groupName, sensorType string) error
	RevokeDatasetTypeFromGroup(ctx context.Context, groupName, sensorType string) error
	ListDatasetsForGroups(ctx context.Context, groupNames []string) ([]models.Dataset, error)
	ListGroupsForDataset(ctx context.Context, datasetName string) ([]models.Group, error)

	CreateApp(ctx context.Context, a *models.App) error
	GetApp(ctx context.Context, appID string) (*models.App, error)
	ListAppsOwnedBy(ctx context.Context, username string) ([]models.App, error)
	GrantAppToUser(ctx context.Context, appID, username string) (bool, error)
	RevokeAppFromUser(ctx context.Context, appID, username string) (bool, error)
	GrantAppToGroup(ctx context.Context, appID, groupName string) (bool, error)
	RevokeAppFromGroup(ctx context.Context, appID, groupName string) (bool, error)
	ListAppUsers(ctx context.Context, appID string) ([]string, error)
	ListAppGroups(ctx context.Context, appID string) ([]string, error)
	SearchApps(ctx context.Context, query string, limit int) ([]models.App, error)
}

// AccessChecker decides per-principal visibility. *access.Resolver
// satisfies it.
type AccessChecker interface {
	CheckDatasetAccess(ctx context.Context, p models.Principal, name string) (bool, error)
	CheckAppAccess(ctx context.Context, p models.Principal, appID string) (bool, error)
	ListAccessibleDatasets(ctx context.Context, p models.Principal) ([]models.Dataset, error)
	ListAccessibleApps(ctx context.Context, p models.Principal) ([]models.App, error)
}

// Server wires the HTTP handlers to their dependencies.
type Server struct {
	cfg      *config.Config
	store    Store
	access   AccessChecker
	upstream tsdb.Client
	admin    idp.Admin

	authn func(http.Handler) http.Handler

	loc     *time.Location
	policy  export.ErrorPolicy
	started time.Time
}

// NewServer builds the handler set. authn is the authentication
// middleware applied to protected routes; tests substitute a stub that
// injects a fixed principal. admin is the IdP-side group directory that
// membership changes are mirrored into; nil disables the mirror.
func NewServer(cfg *config.Config, store Store, access AccessChecker, upstream tsdb.Client, admin idp.Admin, authn func(http.Handler) http.Handler) (*Server, error) {
	loc := time.Local
	if cfg.Export.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Export.Timezone)
		if err != nil {
			return nil, err
		}
	}
	policy, err := export.ParseErrorPolicy(cfg.Export.OnWindowError)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		access:   access,
		upstream: upstream,
		admin:    admin,
		authn:    authn,
		loc:      loc,
		policy:   policy,
		started:  time.Now(),
	}, nil
}

// principal pulls the authenticated principal from the request context,
// writing the 401 itself when it is missing.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	}
	return p, ok
}

// isAdmin reports whether the principal holds the bypass group.
func (s *Server) isAdmin(p models.Principal) bool {
	return p.HoldsGroup(s.cfg.Auth.BypassGroup)
}

// requireAdmin gates group management on bypass-group membership.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return p, false
	}
	if !s.isAdmin(p) {
		respondError(w, r, http.StatusForbidden, CodeForbidden, "administrator group required")
		return p, false
	}
	return p, true
}

// parseRange reads start_time and end_time query parameters, honoring an
// optional per-request timezone override for wall-clock bounds. start_time
// is required; an absent end_time means "now".
func (s *Server) parseRange(r *http.Request) (int64, int64, error) {
	loc := s.loc
	if tz := r.URL.Query().Get("timezone"); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return 0, 0, export.ErrBadTime
		}
	}
	start, err := export.ParseTime(r.URL.Query().Get("start_time"), loc)
	if err != nil {
		return 0, 0, err
	}
	end := time.Now().Unix()
	if raw := r.URL.Query().Get("end_time"); raw != "" {
		end, err = export.ParseTime(raw, loc)
		if err != nil {
			return 0, 0, err
		}
	}
	return start, end, nil
}
