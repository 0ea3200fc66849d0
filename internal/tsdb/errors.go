// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package tsdb

import "fmt"

// ErrorKind classifies upstream failures so handlers can map them to HTTP
// status codes without probing response internals.
type ErrorKind int

const (
	// KindUpstream is any upstream failure not otherwise classified.
	// Maps to 502.
	KindUpstream ErrorKind = iota

	// KindBadRequest means the upstream rejected the query as malformed.
	// Maps to 400.
	KindBadRequest

	// KindNotFound means the queried resource does not exist upstream.
	// Maps to 404.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	default:
		return "upstream"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Kind    ErrorKind
	Status  int // upstream HTTP status, 0 when the request never completed
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

// kindFromStatus derives the error kind from an upstream HTTP status.
func kindFromStatus(status int) ErrorKind {
	switch status {
	case 400:
		return KindBadRequest
	case 404:
		return KindNotFound
	default:
		return KindUpstream
	}
}
