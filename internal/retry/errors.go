// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package retry

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a source error for retry and reporting decisions.
type Kind string

// Error kinds, ordered roughly from "fix your config" to "try again".
const (
	KindConfig     Kind = "config"     // bad or missing configuration, never retried
	KindAuth       Kind = "auth"       // 401/403, never retried
	KindValidation Kind = "validation" // bad request shape, never retried
	KindNotFound   Kind = "not_found"  // 404, never retried
	KindRateLimit  Kind = "rate_limit" // 429, retried honoring Retry-After
	KindTransient  Kind = "transient"  // 5xx, timeouts, network errors, retried
)

// SourceError is the classified error every adapter returns for upstream
// failures. Kind drives the retry decision; RetryAfter (when non-zero)
// overrides the computed backoff delay.
type SourceError struct {
	Source     string
	Operation  string
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: %s (HTTP %d): %v", e.Source, e.Operation, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Source, e.Operation, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retryable reports whether the executor should attempt the operation again.
func (e *SourceError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}

// NewConfigError wraps a configuration problem that no amount of retrying
// will fix.
func NewConfigError(source, operation string, err error) *SourceError {
	return &SourceError{Source: source, Operation: operation, Kind: KindConfig, Err: err}
}

// NewTransientError wraps a network-level failure (connection refused,
// timeout) with no HTTP status attached.
func NewTransientError(source, operation string, err error) *SourceError {
	return &SourceError{Source: source, Operation: operation, Kind: KindTransient, Err: err}
}

// FromHTTPStatus classifies an upstream HTTP failure status. retryAfter is
// the raw Retry-After header value; both delta-seconds and HTTP-date forms
// are honored.
func FromHTTPStatus(source, operation string, status int, retryAfter string) *SourceError {
	e := &SourceError{
		Source:     source,
		Operation:  operation,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.RetryAfter = parseRetryAfter(retryAfter)
	case status >= 500:
		e.Kind = KindTransient
	case status >= 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindTransient
	}
	return e
}

// parseRetryAfter handles both forms the header allows: delta-seconds
// ("120") and an HTTP-date. Unparseable values yield zero, which falls
// back to exponential backoff.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Retryable reports whether err should be retried. Errors that are not
// SourceError are treated as transient so plain network errors from the
// HTTP client still get retried.
func Retryable(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return err != nil
}

// ErrorKind extracts the classified kind for metrics labels, defaulting
// to transient for unclassified errors.
func ErrorKind(err error) Kind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}
