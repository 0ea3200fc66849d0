// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package export

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/metrics"
	"github.com/sensorlab/datagate/internal/tsdb"
)

// DefaultWindowSeconds is the default export window width.
const DefaultWindowSeconds = 1800

// ErrorPolicy decides what happens when one window's upstream query fails.
type ErrorPolicy int

const (
	// ContinueOnError logs the failed window, counts it, and moves on.
	// The exported file then has a gap where the window would have been.
	ContinueOnError ErrorPolicy = iota

	// AbortOnError stops the export at the first failed window.
	AbortOnError
)

// ParseErrorPolicy maps the config strings to a policy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "", "continue":
		return ContinueOnError, nil
	case "abort":
		return AbortOnError, nil
	default:
		return ContinueOnError, fmt.Errorf("unknown window error policy %q", s)
	}
}

// Options configures a Streamer.
type Options struct {
	// Resource names the export for the filename: the dataset name or
	// app ID.
	Resource string

	// Queries are the upstream subqueries covering all resolved metrics.
	// Each window issues one Timeseries call carrying all of them.
	Queries []tsdb.SubQuery

	// Start and End bound the export range in epoch seconds.
	Start int64
	End   int64

	// WindowSeconds is the window width; DefaultWindowSeconds when zero.
	WindowSeconds int64

	// OnWindowError selects the per-window failure policy.
	OnWindowError ErrorPolicy
}

// Streamer produces TSV chunks one window at a time. Not safe for
// concurrent use; a single HTTP handler drives one Streamer.
type Streamer struct {
	client  tsdb.Client
	opts    Options
	windows []Window
	next    int
}

// New creates a Streamer over the given upstream client.
func New(client tsdb.Client, opts Options) *Streamer {
	width := opts.WindowSeconds
	if width <= 0 {
		width = DefaultWindowSeconds
	}
	return &Streamer{
		client:  client,
		opts:    opts,
		windows: Windows(opts.Start, opts.End, width),
	}
}

// Filename returns the download filename, available before any datapoint
// has been fetched so the response headers can be written first.
func (s *Streamer) Filename() string {
	return fmt.Sprintf("%s__%d__%d.tsv", s.opts.Resource, s.opts.Start, s.opts.End)
}

// Next returns the TSV chunk for the next non-empty window. ok is false
// when the export is done or failed; err is non-nil only on abort-worthy
// failures (policy Abort, or cancellation). Cancellation is checked before
// each window's upstream call; a cancel that lands mid-call discards the
// in-flight result.
func (s *Streamer) Next(ctx context.Context) (string, bool, error) {
	for s.next < len(s.windows) {
		if err := ctx.Err(); err != nil {
			metrics.ExportsCanceled.Inc()
			return "", false, err
		}

		w := s.windows[s.next]
		s.next++

		series, err := s.client.Timeseries(ctx, tsdb.TimeseriesQuery{
			Start:   w.Lo,
			End:     w.Hi,
			Queries: s.opts.Queries,
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ExportsCanceled.Inc()
			return "", false, ctxErr
		}
		if err != nil {
			metrics.ExportWindowsFailed.Inc()
			if s.opts.OnWindowError == AbortOnError {
				return "", false, fmt.Errorf("window [%d, %d): %w", w.Lo, w.Hi, err)
			}
			logging.Warn().
				Err(err).
				Str("resource", s.opts.Resource).
				Int64("window_start", w.Lo).
				Int64("window_end", w.Hi).
				Msg("Export window failed, skipping")
			continue
		}

		chunk := formatChunk(series)
		if chunk == "" {
			// Nothing recorded in this window.
			continue
		}

		metrics.ExportWindowsEmitted.Inc()
		return chunk, true, nil
	}

	return "", false, nil
}

// row is one flattened datapoint pending TSV formatting.
type row struct {
	metric  string
	ts      int64
	value   float64
	tags    string
	aggTags string
}

// formatChunk flattens the window's series into TSV rows sorted by
// (metric, timestamp). Returns "" for an empty window.
func formatChunk(series []tsdb.Series) string {
	var rows []row
	for _, sr := range series {
		tags := "{}"
		if len(sr.Tags) > 0 {
			if raw, err := json.Marshal(sr.Tags); err == nil {
				tags = string(raw)
			}
		}
		aggTags := strings.Join(sr.AggregateTags, ",")

		for tsStr, value := range sr.DPs {
			ts, err := strconv.ParseInt(tsStr, 10, 64)
			if err != nil {
				// Upstream emitted a malformed timestamp key; drop the point.
				continue
			}
			rows = append(rows, row{
				metric:  sr.Metric,
				ts:      ts,
				value:   value,
				tags:    tags,
				aggTags: aggTags,
			})
		}
	}

	if len(rows) == 0 {
		return ""
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].metric != rows[j].metric {
			return rows[i].metric < rows[j].metric
		}
		return rows[i].ts < rows[j].ts
	})

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r.metric)
		b.WriteByte('\t')
		b.WriteString(strconv.FormatInt(r.ts, 10))
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(r.value, 'f', -1, 64))
		b.WriteByte('\t')
		b.WriteString(r.tags)
		b.WriteByte('\t')
		b.WriteString(r.aggTags)
		b.WriteByte('\n')
	}
	return b.String()
}
