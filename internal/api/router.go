// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensorlab/datagate/internal/middleware"
)

// Routes assembles the chi router. Health, metrics and the open
// name-space search skip authentication; everything else runs behind
// the configured authenticator.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.cfg.Server.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.Server.RateLimit, s.cfg.Server.RateLimitWindow))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.Health)
		r.Get("/live", s.HealthLive)
		r.Get("/ready", s.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Metric name search is an open name-space: names are not secrets,
	// the data behind them stays gated by the resolver.
	r.Get("/dataset/search", s.SearchDatasets)

	r.Group(func(r chi.Router) {
		r.Use(s.authn)

		r.Get("/dataset", s.GetDataset)
		r.Put("/dataset", s.RegisterDataset)
		r.Get("/dataset/list", s.ListDatasets)
		r.Get("/dataset/tsvdownload", s.DownloadDataset)

		r.Route("/apps", func(r chi.Router) {
			r.Put("/", s.RegisterApp)
			r.Get("/list", s.ListApps)
			r.Get("/myapps", s.ListMyApps)
			r.Get("/search", s.SearchApps)
			r.Get("/metrics/{app_id}", s.AppMetrics)
			r.Get("/data/{app_id}", s.AppData)
			r.Get("/download/{app_id}", s.DownloadApp)
			r.Get("/access/{app_id}", s.ListAppAccess)
			r.Post("/access/{app_id}/add", s.GrantAppAccess)
			r.Post("/access/{app_id}/remove", s.RevokeAppAccess)
			r.Post("/access/{app_id}/group/add", s.GrantAppGroupAccess)
			r.Post("/access/{app_id}/group/remove", s.RevokeAppGroupAccess)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.ListGroups)
			r.Put("/", s.CreateGroup)
			r.Get("/access/dataset", s.DatasetGroups)
			r.Post("/grant/sensor-type", s.GrantSensorType)
			r.Post("/revoke/sensor-type", s.RevokeSensorType)
			r.Route("/{group}", func(r chi.Router) {
				r.Get("/users", s.ListGroupUsers)
				r.Put("/users", s.AddGroupUser)
				r.Delete("/users", s.RemoveGroupUser)
				r.Get("/datasets", s.ListGroupDatasets)
				r.Put("/datasets", s.GrantGroupDataset)
				r.Delete("/datasets", s.RevokeGroupDataset)
			})
		})

		r.Get("/metadata", s.GetMetadata)
		r.Post("/metadata", s.EditMetadata)
	})

	return r
}
