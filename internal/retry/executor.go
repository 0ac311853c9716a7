// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/metrics"
)

// Config controls the exponential backoff schedule.
type Config struct {
	MaxRetries int           `koanf:"max_retries"`
	BaseDelay  time.Duration `koanf:"base_delay"`
	Multiplier float64       `koanf:"multiplier"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	Jitter     bool          `koanf:"jitter"`
}

// DefaultConfig returns the backoff schedule used when a source does not
// override it: up to 3 retries starting at 1s, growing 1.5x per attempt,
// capped at 30s, with 0-25% jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 1.5,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	}
}

// opKey identifies one (source, operation) pair in the counter map.
type opKey struct {
	source    string
	operation string
}

// OpStats is a snapshot of the counters for one (source, operation) pair.
type OpStats struct {
	Source    string `json:"source"`
	Operation string `json:"operation"`
	Total     int64  `json:"total"`
	Errors    int64  `json:"errors"`
	Retries   int64  `json:"retries"`
}

// Executor runs operations with exponential backoff and tracks per
// (source, operation) counters for the metrics endpoints. Counters live
// for the process lifetime until explicitly reset.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	counters map[opKey]*opCounters
}

type opCounters struct {
	total   int64
	errors  int64
	retries int64
}

// NewExecutor builds an Executor, filling any zero Config fields with the
// defaults.
func NewExecutor(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Executor{
		cfg:      cfg,
		counters: make(map[opKey]*opCounters),
	}
}

// Execute runs fn, retrying retryable failures up to MaxRetries times.
// Between attempts it waits for the exponential backoff delay, or for the
// server's Retry-After when one was supplied (capped at MaxDelay in either
// case). Non-retryable errors fail immediately. The wait respects ctx, so
// cancellation never blocks on a sleeping backoff.
func (e *Executor) Execute(ctx context.Context, source, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		e.bump(source, operation, func(c *opCounters) { c.total++ })

		start := time.Now()
		err := fn(ctx)
		elapsed := time.Since(start)

		if err == nil {
			metrics.RecordUpstreamCall(source, operation, "", elapsed)
			return nil
		}

		lastErr = err
		e.bump(source, operation, func(c *opCounters) { c.errors++ })
		metrics.RecordUpstreamCall(source, operation, string(ErrorKind(err)), elapsed)

		if !Retryable(err) {
			logging.Debug().
				Str("source", source).
				Str("operation", operation).
				Err(err).
				Msg("Non-retryable error, failing fast")
			return err
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.delayFor(attempt, err)
		logging.Debug().
			Str("source", source).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying after backoff")

		e.bump(source, operation, func(c *opCounters) { c.retries++ })
		metrics.UpstreamRetriesTotal.WithLabelValues(source, operation).Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// delayFor computes the wait before the next attempt. A server-supplied
// Retry-After supersedes the exponential schedule; both are capped at
// MaxDelay.
func (e *Executor) delayFor(attempt int, err error) time.Duration {
	var se *SourceError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		if se.RetryAfter > e.cfg.MaxDelay {
			return e.cfg.MaxDelay
		}
		return se.RetryAfter
	}

	delay := e.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * e.cfg.Multiplier)
	}
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	if e.cfg.Jitter {
		delay += time.Duration(rand.Float64() * 0.25 * float64(delay)) //nolint:gosec // jitter, not crypto
		if delay > e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay
		}
	}
	return delay
}

// bump resolves the counter under the lock on every increment, so a
// concurrent ResetErrorMetrics never strands an in-flight operation on a
// counter struct the map no longer holds.
func (e *Executor) bump(source, operation string, f func(c *opCounters)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := opKey{source: source, operation: operation}
	c, ok := e.counters[key]
	if !ok {
		c = &opCounters{}
		e.counters[key] = c
	}
	f(c)
}

// Stats returns a snapshot of all per-operation counters.
func (e *Executor) Stats() []OpStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]OpStats, 0, len(e.counters))
	for key, c := range e.counters {
		out = append(out, OpStats{
			Source:    key.source,
			Operation: key.operation,
			Total:     c.total,
			Errors:    c.errors,
			Retries:   c.retries,
		})
	}
	return out
}

// ResetErrorMetrics clears every per-operation counter. Counters are
// otherwise process-lifetime cumulative.
func (e *Executor) ResetErrorMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = make(map[opKey]*opCounters)
}
