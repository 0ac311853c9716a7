// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

// Package retry classifies upstream errors and runs operations with
// exponential backoff.
//
// Adapters return *SourceError so the Executor can distinguish
// configuration and auth failures (fail fast) from rate limits and
// transient faults (retry, honoring Retry-After when the server sent
// one). Per (source, operation) counters feed the admin metrics
// endpoints and survive until explicitly reset.
package retry
