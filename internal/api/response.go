// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package api provides the HTTP surface of the gateway: dataset queries
// and registration, TSV export, app access management, group management
// and the metadata proxy. All JSON endpoints share the APIResponse
// envelope; errors carry a machine-readable code mapped from the
// underlying failure kind.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/middleware"
	"github.com/sensorlab/datagate/internal/models"
	"github.com/sensorlab/datagate/internal/tsdb"
	"github.com/sensorlab/datagate/internal/validation"
)

// Error codes carried in the APIError envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUpstream     = "UPSTREAM_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// respond writes the success envelope with the given payload.
func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, status, models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

// respondError writes the error envelope with an explicit status and code.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondErrorDetails(w, r, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	writeEnvelope(w, status, models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message, Details: details},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// respondMapped translates an error from the lower layers into the HTTP
// taxonomy: caller mistakes become 400, unknown names 404, upstream
// outages 502, and everything else (persistence, transient faults) 500.
func respondMapped(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	respondError(w, r, status, code, err.Error())
}

func mapError(err error) (int, string) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, CodeValidation
	}

	var terr *tsdb.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case tsdb.KindBadRequest:
			return http.StatusBadRequest, CodeValidation
		case tsdb.KindNotFound:
			return http.StatusNotFound, CodeNotFound
		default:
			return http.StatusBadGateway, CodeUpstream
		}
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, database.ErrAlreadyExists):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// decodeBody decodes a JSON request body into dst and validates it,
// writing the 400 response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		respondErrorDetails(w, r, http.StatusBadRequest, CodeValidation, verr.Error(), verr.ToAPIError().Details)
		return false
	}
	return true
}
