// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/models"
)

// ListGroups returns all permission groups. Read-only, any
// authenticated caller.
func (s *Server) ListGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	respond(w, r, http.StatusOK, groups)
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,metricname"`
	Description string `json:"description"`
}

// CreateGroup adds a new permission group. Administrators only.
func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.store.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info().
		Str("group", req.Name).
		Str("user", p.Username).
		Msg("group created")
	respond(w, r, http.StatusCreated, models.Group{ID: id, Name: req.Name, Description: req.Description})
}

// ListGroupUsers returns the members of one group.
func (s *Server) ListGroupUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	users, err := s.store.ListUsersInGroup(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respond(w, r, http.StatusOK, users)
}

type groupUserRequest struct {
	Username string `json:"username" validate:"required"`
}

// AddGroupUser puts a user into a group. Administrators only.
func (s *Server) AddGroupUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req groupUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.AddUserToGroup(r.Context(), req.Username, group); err != nil {
		respondMapped(w, r, err)
		return
	}
	s.mirrorMembership(r, "add", req.Username, group)
	respond(w, r, http.StatusOK, map[string]string{"group": group, "username": req.Username})
}

// RemoveGroupUser takes a user out of a group. Administrators only.
func (s *Server) RemoveGroupUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req groupUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.RemoveUserFromGroup(r.Context(), req.Username, group); err != nil {
		respondMapped(w, r, err)
		return
	}
	s.mirrorMembership(r, "remove", req.Username, group)
	respond(w, r, http.StatusOK, map[string]string{"group": group, "username": req.Username})
}

// mirrorMembership replays a membership change into the IdP-side group
// directory so externally issued tokens pick it up. The store is the
// source of truth; a mirror failure is logged, not surfaced.
func (s *Server) mirrorMembership(r *http.Request, op, username, group string) {
	if s.admin == nil {
		return
	}
	var err error
	switch op {
	case "add":
		err = s.admin.AddUserToGroup(r.Context(), username, group)
	case "remove":
		err = s.admin.RemoveUserFromGroup(r.Context(), username, group)
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn().
			Err(err).
			Str("group", group).
			Str("username", username).
			Msg("idp membership mirror failed")
	}
}

// ListGroupDatasets returns the datasets one group can read, direct
// grants and sensor-type grants combined.
func (s *Server) ListGroupDatasets(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	datasets, err := s.store.ListDatasetsForGroups(r.Context(), []string{chi.URLParam(r, "group")})
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	respond(w, r, http.StatusOK, datasets)
}

type groupDatasetRequest struct {
	Dataset string `json:"dataset" validate:"required,metricname"`
}

// GrantGroupDataset grants a dataset to a group. Administrators only.
func (s *Server) GrantGroupDataset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req groupDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.GrantDatasetToGroup(r.Context(), group, req.Dataset); err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"group": group, "dataset": req.Dataset})
}

// RevokeGroupDataset removes a direct dataset grant. Administrators only.
func (s *Server) RevokeGroupDataset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req groupDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.RevokeDatasetFromGroup(r.Context(), group, req.Dataset); err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"group": group, "dataset": req.Dataset})
}

type sensorTypeGrantRequest struct {
	Group      string `json:"group" validate:"required,metricname"`
	SensorType string `json:"sensor_type" validate:"required,metricname"`
}

// GrantSensorType grants every dataset of a sensor type, present and
// future, to a group. Administrators only.
func (s *Server) GrantSensorType(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req sensorTypeGrantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.GrantDatasetTypeToGroup(r.Context(), req.Group, req.SensorType); err != nil {
		respondMapped(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info().
		Str("group", req.Group).
		Str("sensor_type", req.SensorType).
		Str("user", p.Username).
		Msg("sensor type granted")
	respond(w, r, http.StatusOK, map[string]string{"group": req.Group, "sensor_type": req.SensorType})
}

// RevokeSensorType removes a sensor-type grant. Administrators only.
func (s *Server) RevokeSensorType(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	var req sensorTypeGrantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.store.RevokeDatasetTypeFromGroup(r.Context(), req.Group, req.SensorType); err != nil {
		respondMapped(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"group": req.Group, "sensor_type": req.SensorType})
}

// DatasetGroups returns the groups holding a direct grant on a dataset.
func (s *Server) DatasetGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "name parameter is required")
		return
	}
	groups, err := s.store.ListGroupsForDataset(r.Context(), name)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	respond(w, r, http.StatusOK, groups)
}
