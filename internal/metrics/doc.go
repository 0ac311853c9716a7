// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

// Package metrics provides Prometheus instrumentation for Posterrama.
//
// Metric vectors are registered at init via promauto and exported at
// /metrics by the API router. Upstream metrics are labeled by
// (source, operation) so cache efficiency and retry behavior can be
// tracked per adapter instance, matching the in-process counters exposed
// through the admin metrics endpoint.
package metrics
