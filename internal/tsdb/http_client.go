// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package tsdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/config"
)

// maxErrorBodySize limits how much of an upstream error body is read into
// memory for error messages.
const maxErrorBodySize = 64 * 1024

// HTTPClient is the REST implementation of Client with basic auth.
type HTTPClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewHTTPClient creates an upstream client from configuration.
func NewHTTPClient(cfg *config.TSDBConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:  cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// readBodyForError reads a bounded amount of the response body for error
// messages, indicating truncation when the limit is hit.
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// do executes an authenticated request and decodes the JSON response into
// result when result is non-nil. Non-2xx responses become typed *Error
// values with the kind derived from the status.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Distinguish caller cancellation from upstream failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindUpstream, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:    kindFromStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: string(readBodyForError(resp.Body)),
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &Error{Kind: KindUpstream, Status: resp.StatusCode,
				Message: fmt.Sprintf("failed to decode response: %v", err)}
		}
	}
	return nil
}

// Timeseries runs a datapoint query via POST /api/query.
func (c *HTTPClient) Timeseries(ctx context.Context, q TimeseriesQuery) ([]Series, error) {
	for i := range q.Queries {
		if q.Queries[i].Aggregator == "" {
			q.Queries[i].Aggregator = "none"
		}
	}

	var series []Series
	if err := c.do(ctx, http.MethodPost, "/api/query", q, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// Search suggests metric names with the given prefix.
func (c *HTTPClient) Search(ctx context.Context, prefix string, max int) ([]string, error) {
	params := url.Values{}
	params.Set("type", "metrics")
	params.Set("q", prefix)
	params.Set("max", strconv.Itoa(max))

	var names []string
	if err := c.do(ctx, http.MethodGet, "/api/suggest?"+params.Encode(), nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// RegisterEntity registers a new entity via POST /api/entity.
func (c *HTTPClient) RegisterEntity(ctx context.Context, e EntityRegistration) error {
	return c.do(ctx, http.MethodPost, "/api/entity", e, nil)
}

// EnsureEntityType creates the entity type when missing. The upstream
// answers 409 for an existing type, which this treats as success.
func (c *HTTPClient) EnsureEntityType(ctx context.Context, entityTypeID string) error {
	payload := map[string]string{"entity_type_id": entityTypeID}
	err := c.do(ctx, http.MethodPost, "/api/entity-type", payload, nil)

	var upstreamErr *Error
	if errors.As(err, &upstreamErr) && upstreamErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// GetMetadata returns the metadata attached to a metric.
func (c *HTTPClient) GetMetadata(ctx context.Context, metric string) (map[string]string, error) {
	params := url.Values{}
	params.Set("metric", metric)

	var meta map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/metadata?"+params.Encode(), nil, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// PutMetadata sets one metadata key on a metric.
func (c *HTTPClient) PutMetadata(ctx context.Context, metric, key, value string) error {
	payload := map[string]string{"metric": metric, "key": key, "value": value}
	return c.do(ctx, http.MethodPost, "/api/metadata", payload, nil)
}

// DeleteMetadata removes one metadata key from a metric.
func (c *HTTPClient) DeleteMetadata(ctx context.Context, metric, key string) error {
	params := url.Values{}
	params.Set("metric", metric)
	params.Set("key", key)
	return c.do(ctx, http.MethodDelete, "/api/metadata?"+params.Encode(), nil, nil)
}

// PutMetaControl writes a metadata key through the meta-control endpoint.
func (c *HTTPClient) PutMetaControl(ctx context.Context, metric, key, value string) error {
	payload := map[string]string{"metric": metric, "key": key, "value": value}
	return c.do(ctx, http.MethodPost, "/api/meta-control", payload, nil)
}
