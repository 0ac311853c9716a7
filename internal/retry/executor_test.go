// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Multiplier: 1.5,
		MaxDelay:   10 * time.Millisecond,
		Jitter:     false,
	}
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	calls := 0
	err := e.Execute(context.Background(), "plex", "fetch_media", func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return FromHTTPStatus("plex", "fetch_media", http.StatusInternalServerError, "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (3 failures + 1 success), got %d", calls)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	calls := 0
	err := e.Execute(context.Background(), "tmdb", "discover", func(ctx context.Context) error {
		calls++
		return FromHTTPStatus("tmdb", "discover", http.StatusTooManyRequests, "")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (initial + 3 retries), got %d", calls)
	}

	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected SourceError, got %T", err)
	}
	if se.Kind != KindRateLimit {
		t.Errorf("expected rate_limit kind, got %s", se.Kind)
	}
}

func TestExecuteFailsFastOnAuthError(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	calls := 0
	err := e.Execute(context.Background(), "jellyfin", "fetch_media", func(ctx context.Context) error {
		calls++
		return FromHTTPStatus("jellyfin", "fetch_media", http.StatusUnauthorized, "")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestExecuteFailsFastOnConfigError(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	calls := 0
	err := e.Execute(context.Background(), "romm", "fetch_media", func(ctx context.Context) error {
		calls++
		return NewConfigError("romm", "fetch_media", errors.New("missing api key"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestRetryAfterSupersedesBackoff(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxDelay = 50 * time.Millisecond
	e := NewExecutor(cfg)

	// An absurd Retry-After must be capped at MaxDelay.
	se := FromHTTPStatus("tmdb", "discover", http.StatusTooManyRequests, "3600")
	if got := e.delayFor(0, se); got != cfg.MaxDelay {
		t.Errorf("delayFor with huge Retry-After = %v, want cap %v", got, cfg.MaxDelay)
	}

	// A modest Retry-After wins over the computed backoff.
	se = &SourceError{Kind: KindRateLimit, RetryAfter: 7 * time.Millisecond}
	if got := e.delayFor(2, se); got != 7*time.Millisecond {
		t.Errorf("delayFor with Retry-After = %v, want 7ms", got)
	}
}

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()

	e := NewExecutor(Config{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		Multiplier: 1.5,
		MaxDelay:   30 * time.Second,
		Jitter:     false,
	})

	transient := errors.New("boom")
	want := []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := e.delayFor(attempt, transient); got != w {
			t.Errorf("delayFor(%d) = %v, want %v", attempt, got, w)
		}
	}

	// Deep attempts are capped at MaxDelay.
	if got := e.delayFor(20, transient); got != 30*time.Second {
		t.Errorf("delayFor(20) = %v, want cap 30s", got)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	e := NewExecutor(Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 1.5,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	})

	transient := errors.New("boom")
	for i := 0; i < 100; i++ {
		d := e.delayFor(0, transient)
		if d < time.Second || d > 1250*time.Millisecond {
			t.Fatalf("jittered delay %v outside [1s, 1.25s]", d)
		}
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.BaseDelay = 10 * time.Second
	cfg.MaxDelay = 10 * time.Second
	e := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- e.Execute(ctx, "plex", "fetch_media", func(ctx context.Context) error {
			return FromHTTPStatus("plex", "fetch_media", http.StatusInternalServerError, "")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestStatsAndReset(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	_ = e.Execute(context.Background(), "plex", "fetch_media", func(ctx context.Context) error {
		return nil
	})
	_ = e.Execute(context.Background(), "plex", "test_connection", func(ctx context.Context) error {
		return FromHTTPStatus("plex", "test_connection", http.StatusBadGateway, "")
	})

	stats := e.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 counter entries, got %d", len(stats))
	}

	byOp := make(map[string]OpStats, len(stats))
	for _, s := range stats {
		byOp[s.Operation] = s
	}
	if s := byOp["fetch_media"]; s.Total != 1 || s.Errors != 0 {
		t.Errorf("fetch_media counters = %+v", s)
	}
	if s := byOp["test_connection"]; s.Total != 4 || s.Errors != 4 || s.Retries != 3 {
		t.Errorf("test_connection counters = %+v", s)
	}

	e.ResetErrorMetrics()
	if got := e.Stats(); len(got) != 0 {
		t.Errorf("expected empty stats after reset, got %d entries", len(got))
	}
}

func TestResetDuringInFlightOperation(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastConfig())

	// A reset landing mid-operation must not strand the operation on a
	// detached counter: increments after the reset show up in Stats.
	calls := 0
	err := e.Execute(context.Background(), "plex", "fetch_media", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			e.ResetErrorMetrics()
			return FromHTTPStatus("plex", "fetch_media", http.StatusBadGateway, "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}

	stats := e.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 stats entry after in-flight reset, got %d", len(stats))
	}
	// Post-reset increments: one error, one retry, one second attempt.
	s := stats[0]
	if s.Total != 1 || s.Errors != 1 || s.Retries != 1 {
		t.Errorf("post-reset counters = %+v, want total=1 errors=1 retries=1", s)
	}
}

func TestFromHTTPStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status     int
		retryAfter string
		wantKind   Kind
		retryable  bool
	}{
		{http.StatusUnauthorized, "", KindAuth, false},
		{http.StatusForbidden, "", KindAuth, false},
		{http.StatusNotFound, "", KindNotFound, false},
		{http.StatusBadRequest, "", KindValidation, false},
		{http.StatusTooManyRequests, "5", KindRateLimit, true},
		{http.StatusInternalServerError, "", KindTransient, true},
		{http.StatusServiceUnavailable, "", KindTransient, true},
	}

	for _, tt := range tests {
		se := FromHTTPStatus("x", "y", tt.status, tt.retryAfter)
		if se.Kind != tt.wantKind {
			t.Errorf("status %d: kind = %s, want %s", tt.status, se.Kind, tt.wantKind)
		}
		if se.Retryable() != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, se.Retryable(), tt.retryable)
		}
	}

	se := FromHTTPStatus("x", "y", http.StatusTooManyRequests, "5")
	if se.RetryAfter != 5*time.Second {
		t.Errorf("RetryAfter = %v, want 5s", se.RetryAfter)
	}
}
