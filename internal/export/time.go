// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package export streams chunked TSV exports of wide time ranges.
//
// A requested range is partitioned into fixed-width windows and each window
// becomes at most one upstream query. The Streamer is pull-based: the
// caller asks for the next chunk, so no datapoints are buffered beyond a
// single window and a slow client naturally backpressures the upstream.
package export

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrBadTime is returned when a time bound is neither epoch seconds nor a
// datetime in the accepted layout.
var ErrBadTime = errors.New("invalid time format")

// TimeLayout is the accepted datetime layout for non-epoch bounds.
const TimeLayout = "2006/01/02 15:04:05"

// ParseTime parses a time bound: raw epoch seconds, or TimeLayout
// interpreted in loc. A nil loc means server local time.
func ParseTime(s string, loc *time.Location) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time: %w", ErrBadTime)
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		if epoch < 0 {
			return 0, fmt.Errorf("negative epoch %q: %w", s, ErrBadTime)
		}
		return epoch, nil
	}

	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimeLayout, s, loc)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, ErrBadTime)
	}
	return t.Unix(), nil
}

// Window is one [Lo, Hi) export time window in epoch seconds.
type Window struct {
	Lo int64
	Hi int64
}

// Windows partitions [start, end) into ascending fixed-width windows, the
// final one clamped to end. Returns nil when the range is empty or the
// width is not positive.
func Windows(start, end, width int64) []Window {
	if width <= 0 || end <= start {
		return nil
	}

	n := (end - start + width - 1) / width
	windows := make([]Window, 0, n)
	for lo := start; lo < end; lo += width {
		hi := lo + width
		if hi > end {
			hi = end
		}
		windows = append(windows, Window{Lo: lo, Hi: hi})
	}
	return windows
}
