// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package api

import (
	"net/http"
	"sort"

	"github.com/sensorlab/datagate/internal/logging"
)

// GetMetadata returns the metadata attached to a dataset's metric.
func (s *Server) GetMetadata(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("dataset")
	if _, ok := s.gateDataset(w, r, p, name); !ok {
		return
	}
	meta, err := s.upstream.GetMetadata(r.Context(), name)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	respond(w, r, http.StatusOK, meta)
}

type editMetadataRequest struct {
	Dataset  string            `json:"dataset" validate:"required,metricname"`
	Metadata map[string]string `json:"metadata" validate:"required"`
}

// metadataDiff is what EditMetadata reports back: which keys it
// deleted, wrote, and left alone.
type metadataDiff struct {
	Deleted   []string `json:"deleted"`
	Written   []string `json:"written"`
	Unchanged []string `json:"unchanged"`
}

// EditMetadata reconciles the stored metadata with the submitted set:
// keys absent from the request are deleted, changed or new keys are
// written, identical keys are left untouched. Writes fall back to the
// meta-control endpoint for keys the plain metadata endpoint refuses.
func (s *Server) EditMetadata(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req editMetadataRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := s.gateDataset(w, r, p, req.Dataset); !ok {
		return
	}

	ctx := r.Context()
	current, err := s.upstream.GetMetadata(ctx, req.Dataset)
	if err != nil {
		respondMapped(w, r, err)
		return
	}

	var diff metadataDiff
	for key := range current {
		if _, keep := req.Metadata[key]; keep {
			continue
		}
		if err := s.upstream.DeleteMetadata(ctx, req.Dataset, key); err != nil {
			respondMapped(w, r, err)
			return
		}
		diff.Deleted = append(diff.Deleted, key)
	}
	for key, value := range req.Metadata {
		if old, exists := current[key]; exists && old == value {
			diff.Unchanged = append(diff.Unchanged, key)
			continue
		}
		if err := s.upstream.PutMetadata(ctx, req.Dataset, key, value); err != nil {
			if err := s.upstream.PutMetaControl(ctx, req.Dataset, key, value); err != nil {
				respondMapped(w, r, err)
				return
			}
		}
		diff.Written = append(diff.Written, key)
	}
	sort.Strings(diff.Deleted)
	sort.Strings(diff.Written)
	sort.Strings(diff.Unchanged)

	logging.FromContext(ctx).Info().
		Str("dataset", req.Dataset).
		Str("user", p.Username).
		Int("deleted", len(diff.Deleted)).
		Int("written", len(diff.Written)).
		Msg("metadata reconciled")
	respond(w, r, http.StatusOK, diff)
}
