// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/export"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/metrics"
	"github.com/sensorlab/datagate/internal/models"
	"github.com/sensorlab/datagate/internal/tsdb"
)

// gateApp looks the app up and runs the access check, writing the 404
// or 403 itself on failure.
func (s *Server) gateApp(w http.ResponseWriter, r *http.Request, p models.Principal, appID string) bool {
	if _, err := s.store.GetApp(r.Context(), appID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown app "+appID)
		} else {
			respondMapped(w, r, err)
		}
		return false
	}
	granted, err := s.access.CheckAppAccess(r.Context(), p, appID)
	metrics.RecordAccessCheck("app", granted, err)
	if err != nil {
		respondMapped(w, r, err)
		return false
	}
	if !granted {
		respondError(w, r, http.StatusForbidden, CodeForbidden, "no access to app "+appID)
		return false
	}
	return true
}

// gateAppOwner restricts access management to the app's owner;
// members of the bypass group may manage any app.
func (s *Server) gateAppOwner(w http.ResponseWriter, r *http.Request, p models.Principal, appID string) bool {
	app, err := s.store.GetApp(r.Context(), appID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown app "+appID)
		} else {
			respondMapped(w, r, err)
		}
		return false
	}
	if app.Owner != p.Username && !s.isAdmin(p) {
		respondError(w, r, http.StatusForbidden, CodeForbidden, "only the app owner can manage access")
		return false
	}
	return true
}

type registerAppRequest struct {
	AppID string `json:"app_id" validate:"required,metricname"`
	Name  string `json:"name" validate:"required"`
}

// RegisterApp creates an app owned by the caller.
func (s *Server) RegisterApp(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req registerAppRequest
	if !decodeBody(w, r, &req) {
		return
	}
	app := &models.App{ID: req.AppID, Owner: p.Username, Name: req.Name}
	if err := s.store.CreateApp(r.Context(), app); err != nil {
		respondMapped(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info().
		Str("app_id", app.ID).
		Str("owner", app.Owner).
		Msg("app registered")
	respond(w, r, http.StatusCreated, app)
}

// ListApps returns every app the caller can read.
func (s *Server) ListApps(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	apps, err := s.access.ListAccessibleApps(r.Context(), p)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if apps == nil {
		apps = []models.App{}
	}
	respond(w, r, http.StatusOK, apps)
}

// ListMyApps returns the apps the caller owns.
func (s *Server) ListMyApps(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	apps, err := s.store.ListAppsOwnedBy(r.Context(), p.Username)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if apps == nil {
		apps = []models.App{}
	}
	respond(w, r, http.StatusOK, apps)
}

// SearchApps finds apps by ID or name substring.
func (s *Server) SearchApps(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "query parameter is required")
		return
	}
	apps, err := s.store.SearchApps(r.Context(), query, s.cfg.Export.SearchLimit)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if apps == nil {
		apps = []models.App{}
	}
	respond(w, r, http.StatusOK, apps)
}

// AppMetrics lists the metric names published under the app's prefix.
func (s *Server) AppMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateApp(w, r, p, appID) {
		return
	}
	names, err := s.upstream.Search(r.Context(), appID+".", s.cfg.Export.SearchLimit)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respond(w, r, http.StatusOK, names)
}

// errOutsideNamespace flags a metric filter that escapes the app's
// name-space. Apps publish metrics under "<app_id>." and may not read
// outside it.
var errOutsideNamespace = errors.New("metric outside the app name-space")

// appQueries resolves the metric set for an app query: the single
// filtered metric when one is given, otherwise every metric published
// under the app's prefix.
func (s *Server) appQueries(r *http.Request, appID string, tags map[string]string) ([]tsdb.SubQuery, error) {
	if metric := r.URL.Query().Get("metric"); metric != "" {
		if !strings.HasPrefix(metric, appID+".") {
			return nil, errOutsideNamespace
		}
		return []tsdb.SubQuery{{Metric: metric, Tags: tags}}, nil
	}
	names, err := s.upstream.Search(r.Context(), appID+".", s.cfg.Export.SearchLimit)
	if err != nil {
		return nil, err
	}
	queries := make([]tsdb.SubQuery, 0, len(names))
	for _, name := range names {
		queries = append(queries, tsdb.SubQuery{Metric: name, Tags: tags})
	}
	return queries, nil
}

// AppData proxies a datapoint query for the app: one metric if filtered,
// else all metrics under the app's prefix.
func (s *Server) AppData(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateApp(w, r, p, appID) {
		return
	}
	start, end, err := s.parseRange(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	tags, err := parseTags(r.URL.Query().Get("tags"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "tags must be a JSON object")
		return
	}
	queries, err := s.appQueries(r, appID, tags)
	if err != nil {
		if errors.Is(err, errOutsideNamespace) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "metric must be under the app prefix "+appID+".")
		} else {
			respondMapped(w, r, err)
		}
		return
	}
	if len(queries) == 0 {
		respond(w, r, http.StatusOK, []tsdb.Series{})
		return
	}
	series, err := s.upstream.Timeseries(r.Context(), tsdb.TimeseriesQuery{
		Start:   start,
		End:     end,
		Queries: queries,
	})
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, series)
}

// DownloadApp streams the app's datapoints as TSV, windowed like the
// dataset export: one metric if filtered, else all metrics under the
// app's prefix.
func (s *Server) DownloadApp(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateApp(w, r, p, appID) {
		return
	}
	start, end, err := s.parseRange(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	tags, err := parseTags(r.URL.Query().Get("tags"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "tags must be a JSON object")
		return
	}
	queries, err := s.appQueries(r, appID, tags)
	if err != nil {
		if errors.Is(err, errOutsideNamespace) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "metric must be under the app prefix "+appID+".")
		} else {
			respondMapped(w, r, err)
		}
		return
	}
	s.streamTSV(w, r, export.Options{
		Resource:      appID,
		Queries:       queries,
		Start:         start,
		End:           end,
		WindowSeconds: int64(s.cfg.Export.WindowSeconds),
		OnWindowError: s.policy,
	})
}

// appAccessList is what ListAppAccess reports: the direct user grants
// and the group grants on the app.
type appAccessList struct {
	AppID  string   `json:"app_id"`
	Users  []string `json:"users"`
	Groups []string `json:"groups"`
}

// ListAppAccess returns the user and group grants on the app.
func (s *Server) ListAppAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateAppOwner(w, r, p, appID) {
		return
	}
	users, err := s.store.ListAppUsers(r.Context(), appID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	groups, err := s.store.ListAppGroups(r.Context(), appID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	if groups == nil {
		groups = []string{}
	}
	respond(w, r, http.StatusOK, appAccessList{AppID: appID, Users: users, Groups: groups})
}

type appAccessRequest struct {
	Username string `json:"username" validate:"required"`
}

// GrantAppAccess gives a user a direct grant on the app.
func (s *Server) GrantAppAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateAppOwner(w, r, p, appID) {
		return
	}
	var req appAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := s.store.GrantAppToUser(r.Context(), appID, req.Username)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"app_id": appID, "username": req.Username, "changed": changed})
}

// RevokeAppAccess removes a user's direct grant on the app.
func (s *Server) RevokeAppAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateAppOwner(w, r, p, appID) {
		return
	}
	var req appAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := s.store.RevokeAppFromUser(r.Context(), appID, req.Username)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"app_id": appID, "username": req.Username, "changed": changed})
}

type appGroupAccessRequest struct {
	Group string `json:"group" validate:"required,metricname"`
}

// GrantAppGroupAccess gives every member of a group access to the app.
func (s *Server) GrantAppGroupAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateAppOwner(w, r, p, appID) {
		return
	}
	var req appGroupAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := s.store.GrantAppToGroup(r.Context(), appID, req.Group)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"app_id": appID, "group": req.Group, "changed": changed})
}

// RevokeAppGroupAccess removes a group's grant on the app.
func (s *Server) RevokeAppGroupAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	appID := chi.URLParam(r, "app_id")
	if !s.gateAppOwner(w, r, p, appID) {
		return
	}
	var req appGroupAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := s.store.RevokeAppFromGroup(r.Context(), appID, req.Group)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"app_id": appID, "group": req.Group, "changed": changed})
}
