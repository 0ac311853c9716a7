// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

// Package source defines the adapter contract every upstream implements
// and the Manager that aggregates them.
//
// Adapters live in subpackages (plex, jellyfin, tmdb, tvdb, romm, local)
// and share this package's pagination helper, per-adapter metrics, and
// circuit breaker. The Manager keys adapters by "type:name", fans
// aggregate requests out across them, and isolates per-source failures so
// one dead upstream degrades results instead of erasing them.
package source
