// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

/*
Package media defines the normalized media item model shared by all source
adapters, the layered content filter pipeline, and sampling helpers.

Every adapter maps its upstream schema into media.Item and runs the same
Filters pipeline so filtering behavior is identical regardless of which
backend produced an item. Filter stages execute in a fixed order:

 1. Rating (minimum score threshold)
 2. Genre (allow-list, fail-closed on items without genres)
 3. Year (single year, range, or comma-separated multiple ranges)
 4. Quality (resolution label allow-list, movies only)
 5. Legacy combined rating filters (independent sub-checks)

Fail-closed means an item missing the data an active filter needs is
dropped rather than passed through; an inactive filter never touches an
item.
*/
package media
