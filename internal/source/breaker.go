// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package source

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
	"github.com/posterrama/posterrama/internal/metrics"
)

// BreakerConfig controls the per-source circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	MaxRequests uint32        `koanf:"max_requests"`
	Interval    time.Duration `koanf:"interval"`
	Timeout     time.Duration `koanf:"timeout"`
}

// DefaultBreakerConfig mirrors the usual protective settings: trip at 60%
// failures once ten requests have been seen, probe again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:     true,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Breaker wraps one source's fetches in a circuit breaker so a dead
// upstream sheds load fast instead of stacking timed-out requests.
type Breaker struct {
	source string
	cb     *gobreaker.CircuitBreaker[[]media.Item]
}

// NewBreaker builds a breaker for the given source key ("type:name").
// Returns nil when disabled; callers treat a nil Breaker as pass-through.
func NewBreaker(source string, cfg BreakerConfig) *Breaker {
	if !cfg.Enabled {
		return nil
	}
	def := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("source", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateString(from), stateString(to)).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(source).Set(stateToFloat(gobreaker.StateClosed))
	return &Breaker{
		source: source,
		cb:     gobreaker.NewCircuitBreaker[[]media.Item](settings),
	}
}

// Execute runs fn through the breaker. A nil receiver is a pass-through.
func (b *Breaker) Execute(fn func() ([]media.Item, error)) ([]media.Item, error) {
	if b == nil {
		return fn()
	}
	items, err := b.cb.Execute(fn)
	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		metrics.CircuitBreakerRequests.WithLabelValues(b.source, "rejected").Inc()
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.source, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.source, "success").Inc()
	}
	return items, err
}

// State returns the current breaker state name, "disabled" for a nil
// breaker.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return stateString(b.cb.State())
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
