// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"net/http"
	"time"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Health reports overall service status and uptime.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// HealthLive is the liveness probe: the process is up and serving.
func (s *Server) HealthLive(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: the permissions store must answer.
func (s *Server) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeInternal, "permissions store unavailable")
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
