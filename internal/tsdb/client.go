// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package tsdb talks to the upstream time-series store.
//
// The upstream speaks an OpenTSDB-style REST protocol: metric queries over
// epoch ranges, name suggestion, entity registration and per-metric
// metadata. All datapoints live upstream; Datagate only proxies and
// reshapes.
package tsdb

import "context"

// TimeseriesQuery describes one upstream query over an epoch-second range.
// A single query may cover multiple metrics; the upstream returns one or
// more Series per metric depending on tag grouping.
type TimeseriesQuery struct {
	Start   int64      `json:"start"`
	End     int64      `json:"end"`
	Queries []SubQuery `json:"queries"`
}

// SubQuery selects one metric with optional tag filters.
type SubQuery struct {
	Metric     string            `json:"metric"`
	Aggregator string            `json:"aggregator"` // defaults to "none" when empty
	Tags       map[string]string `json:"tags,omitempty"`
}

// Series is one result group: a metric with its grouping tags, the tags
// aggregated away, and datapoints keyed by epoch-second timestamp.
type Series struct {
	Metric        string             `json:"metric"`
	Tags          map[string]string  `json:"tags"`
	AggregateTags []string           `json:"aggregateTags"`
	DPs           map[string]float64 `json:"dps"`
}

// EntityRegistration describes a new time-series entity to register
// upstream before data can be written to it.
type EntityRegistration struct {
	EntityTypeID string            `json:"entity_type_id"`
	EntityID     string            `json:"entity_id"`
	Name         string            `json:"name"`
	Metrics      []string          `json:"metrics,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Client is the upstream time-series store interface. Implementations:
// HTTPClient (REST) and BreakerClient (circuit-breaker wrapper).
type Client interface {
	// Timeseries runs a datapoint query.
	Timeseries(ctx context.Context, q TimeseriesQuery) ([]Series, error)

	// Search suggests metric names with the given prefix, up to max results.
	Search(ctx context.Context, prefix string, max int) ([]string, error)

	// RegisterEntity registers a new entity upstream.
	RegisterEntity(ctx context.Context, e EntityRegistration) error

	// EnsureEntityType creates the entity type if it does not exist yet.
	// Idempotent.
	EnsureEntityType(ctx context.Context, entityTypeID string) error

	// GetMetadata returns the metadata key/value pairs attached to a metric.
	GetMetadata(ctx context.Context, metric string) (map[string]string, error)

	// PutMetadata sets one metadata key on a metric.
	PutMetadata(ctx context.Context, metric, key, value string) error

	// DeleteMetadata removes one metadata key from a metric.
	DeleteMetadata(ctx context.Context, metric, key string) error

	// PutMetaControl writes through the meta-control endpoint, the fallback
	// path for keys the plain metadata endpoint refuses to touch.
	PutMetaControl(ctx context.Context, metric, key, value string) error
}
