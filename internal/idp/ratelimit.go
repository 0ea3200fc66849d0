// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package idp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/metrics"
)

// LoginLimiter throttles credential-exchange attempts per client IP.
// Entries idle longer than staleAfter are evicted on the next sweep.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int

	staleAfter time.Duration
	lastSweep  time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter creates a limiter from auth configuration.
func NewLoginLimiter(cfg *config.AuthConfig) *LoginLimiter {
	perMinute := cfg.LoginRatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{
		limiters:   make(map[string]*limiterEntry),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      burst,
		staleAfter: 15 * time.Minute,
		lastSweep:  time.Now(),
	}
}

// Allow reports whether the client identified by ip may attempt a login now.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > l.staleAfter {
		l.sweep(now)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.Allow()
	if !allowed {
		metrics.AuthAttempts.WithLabelValues("rate_limited").Inc()
	}
	return allowed
}

// sweep drops limiters idle past staleAfter. Caller holds l.mu.
func (l *LoginLimiter) sweep(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.staleAfter {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}
