// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package tsdb

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a failing upstream
// cannot pile up blocked handlers.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should mock the wrapped client, not the breaker.
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient wraps client with a circuit breaker configured from cfg.
func NewBreakerClient(client Client, cfg *config.TSDBConfig) *BreakerClient {
	cbName := "tsdb-upstream"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},

		// Caller mistakes must not open the circuit; only genuine upstream
		// failures count.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var upstreamErr *Error
			if errors.As(err, &upstreamErr) {
				return upstreamErr.Kind != KindUpstream
			}
			// Context cancellation reflects the caller, not the upstream.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// execute runs fn through the circuit breaker, normalizing rejection errors.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &Error{Kind: KindUpstream, Message: "upstream circuit open: " + err.Error()}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failed").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

func (b *BreakerClient) Timeseries(ctx context.Context, q TimeseriesQuery) ([]Series, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.Timeseries(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	series, _ := result.([]Series)
	return series, nil
}

func (b *BreakerClient) Search(ctx context.Context, prefix string, max int) ([]string, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.Search(ctx, prefix, max)
	})
	if err != nil {
		return nil, err
	}
	names, _ := result.([]string)
	return names, nil
}

func (b *BreakerClient) RegisterEntity(ctx context.Context, e EntityRegistration) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.RegisterEntity(ctx, e)
	})
	return err
}

func (b *BreakerClient) EnsureEntityType(ctx context.Context, entityTypeID string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.EnsureEntityType(ctx, entityTypeID)
	})
	return err
}

func (b *BreakerClient) GetMetadata(ctx context.Context, metric string) (map[string]string, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetMetadata(ctx, metric)
	})
	if err != nil {
		return nil, err
	}
	meta, _ := result.(map[string]string)
	return meta, nil
}

func (b *BreakerClient) PutMetadata(ctx context.Context, metric, key, value string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.PutMetadata(ctx, metric, key, value)
	})
	return err
}

func (b *BreakerClient) DeleteMetadata(ctx context.Context, metric, key string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.DeleteMetadata(ctx, metric, key)
	})
	return err
}

func (b *BreakerClient) PutMetaControl(ctx context.Context, metric, key, value string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.PutMetaControl(ctx, metric, key, value)
	})
	return err
}
