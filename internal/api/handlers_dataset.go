// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/export"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/metrics"
	"github.com/sensorlab/datagate/internal/models"
	"github.com/sensorlab/datagate/internal/tsdb"
	"github.com/sensorlab/datagate/internal/validation"
)

type datasetQuery struct {
	Dataset string `validate:"required,metricname"`
}

// gateDataset looks the dataset up and runs the access check. Unknown
// names are 404, denied access 403; both paths write the response.
// Returns the dataset row on success.
func (s *Server) gateDataset(w http.ResponseWriter, r *http.Request, p models.Principal, name string) (*models.Dataset, bool) {
	if verr := validation.ValidateStruct(&datasetQuery{Dataset: name}); verr != nil {
		respondErrorDetails(w, r, http.StatusBadRequest, CodeValidation, verr.Error(), verr.ToAPIError().Details)
		return nil, false
	}
	d, err := s.store.GetDatasetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "unknown dataset "+name)
		} else {
			respondMapped(w, r, err)
		}
		return nil, false
	}
	granted, err := s.access.CheckDatasetAccess(r.Context(), p, name)
	metrics.RecordAccessCheck("dataset", granted, err)
	if err != nil {
		respondMapped(w, r, err)
		return nil, false
	}
	if !granted {
		respondError(w, r, http.StatusForbidden, CodeForbidden, "no access to dataset "+name)
		return nil, false
	}
	return d, true
}

// datasetQueries resolves the dataset to its metric set: the sensors
// recorded at registration, falling back to an upstream name search
// under the dataset's prefix for datasets registered without one.
func (s *Server) datasetQueries(r *http.Request, d *models.Dataset, tags map[string]string) ([]tsdb.SubQuery, error) {
	sensors := d.Sensors
	if len(sensors) == 0 {
		var err error
		sensors, err = s.upstream.Search(r.Context(), d.Name+".", s.cfg.Export.SearchLimit)
		if err != nil {
			return nil, err
		}
	}
	queries := make([]tsdb.SubQuery, 0, len(sensors))
	for _, sensor := range sensors {
		queries = append(queries, tsdb.SubQuery{Metric: sensor, Tags: tags})
	}
	return queries, nil
}

// parseTags decodes the optional tags query parameter, a JSON object of
// tag filters.
func parseTags(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// GetDataset proxies a datapoint query for one dataset.
func (s *Server) GetDataset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("dataset")
	d, ok := s.gateDataset(w, r, p, name)
	if !ok {
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
	queries, err := s.datasetQueries(r, d, tags)
	if err != nil {
		respondMapped(w, r, err)
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

type registerDatasetRequest struct {
	Name       string            `json:"dataset" validate:"required,metricname"`
	SensorType string            `json:"sensor_type" validate:"required,metricname"`
	EntityID   string            `json:"entity_id" validate:"required"`
	Sensors    []string          `json:"sensors" validate:"required,min=1,dive,metricname"`
	Group      string            `json:"group"`
	Attributes map[string]string `json:"attributes"`
}

// RegisterDataset creates a dataset: entity type and entity upstream
// first, then the local row, then the optional group link. An upstream
// failure leaves no local row behind.
func (s *Server) RegisterDataset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req registerDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for _, sensor := range req.Sensors {
		if !strings.HasPrefix(sensor, req.Name+".") {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "sensor "+sensor+" must be under the dataset prefix "+req.Name+".")
			return
		}
	}

	ctx := r.Context()
	if _, err := s.store.GetDatasetByName(ctx, req.Name); err == nil {
		respondError(w, r, http.StatusConflict, CodeConflict, "dataset "+req.Name+" already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		respondMapped(w, r, err)
		return
	}

	if err := s.upstream.EnsureEntityType(ctx, req.SensorType); err != nil {
		respondMapped(w, r, err)
		return
	}
	if err := s.upstream.RegisterEntity(ctx, tsdb.EntityRegistration{
		EntityTypeID: req.SensorType,
		EntityID:     req.EntityID,
		Name:         req.Name,
		Metrics:      req.Sensors,
		Attributes:   req.Attributes,
	}); err != nil {
		respondMapped(w, r, err)
		return
	}

	d := &models.Dataset{
		EntityID:     req.EntityID,
		EntityTypeID: req.SensorType,
		Name:         req.Name,
		SensorType:   req.SensorType,
		Sensors:      req.Sensors,
	}
	if _, err := s.store.CreateDataset(ctx, d); err != nil {
		respondMapped(w, r, err)
		return
	}
	if req.Group != "" {
		if err := s.store.GrantDatasetToGroup(ctx, req.Group, req.Name); err != nil {
			respondMapped(w, r, err)
			return
		}
	}

	logging.FromContext(ctx).Info().
		Str("dataset", req.Name).
		Str("sensor_type", req.SensorType).
		Str("user", p.Username).
		Msg("dataset registered")
	respond(w, r, http.StatusCreated, d)
}

// ListDatasets returns the datasets the caller can reach through group
// or sensor-type grants.
func (s *Server) ListDatasets(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	datasets, err := s.access.ListAccessibleDatasets(r.Context(), p)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	respond(w, r, http.StatusOK, datasets)
}

// SearchDatasets suggests metric names by prefix. The name-space is
// open; datapoints remain gated.
func (s *Server) SearchDatasets(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Export.SearchLimit
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "max must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	names, err := s.upstream.Search(r.Context(), r.URL.Query().Get("dataset"), limit)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respond(w, r, http.StatusOK, names)
}

// tsvHeader is the first row of every TSV export.
const tsvHeader = "dataset\ttimestamp\tsensor value\ttags\taggregateTags\n"

// DownloadDataset streams the dataset's datapoints as TSV, one time
// window at a time, flushing after each chunk so large exports never
// buffer fully in memory.
func (s *Server) DownloadDataset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("dataset")
	d, ok := s.gateDataset(w, r, p, name)
	if !ok {
		return
	}
	start, end, err := s.parseRange(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	queries, err := s.datasetQueries(r, d, nil)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	s.streamTSV(w, r, export.Options{
		Resource:      name,
		Queries:       queries,
		Start:         start,
		End:           end,
		WindowSeconds: int64(s.cfg.Export.WindowSeconds),
		OnWindowError: s.policy,
	})
}

// streamTSV drives a Streamer over the response. Once the header is on
// the wire the status code is fixed; failures after that point just end
// the stream.
func (s *Server) streamTSV(w http.ResponseWriter, r *http.Request, opts export.Options) {
	streamer := export.New(s.upstream, opts)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+streamer.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(tsvHeader)); err != nil {
		return
	}
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	if len(opts.Queries) == 0 {
		// Nothing to export, just the header row.
		return
	}

	metrics.ExportsStarted.Inc()
	ctx := r.Context()
	for {
		chunk, ok, err := streamer.Next(ctx)
		if err != nil {
			logging.FromContext(ctx).Warn().
				Err(err).
				Str("resource", opts.Resource).
				Msg("export ended early")
			return
		}
		if !ok {
			return
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
