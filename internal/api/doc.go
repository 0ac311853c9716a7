// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

// Package api exposes the HTTP surface: the public /get-media endpoint,
// the admin endpoints under /api/media, a health probe, and the
// Prometheus exposition endpoint.
package api
