// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

/*
Package cache provides thread-safe in-memory caching with TTL support.

Each source adapter owns its own Cache instances so a slow or misbehaving
upstream never pollutes another source's cache. Typical instances per
adapter:

  - Raw API page responses (about one hour TTL)
  - Genre id-to-name lookup maps (one hour TTL)
  - Streaming-provider availability maps (30 minutes TTL, more volatile)

# Expiration model

Reads check freshness: a Get is a hit only if now - timestamp < TTL.
Bulk removal of expired entries happens in the explicit Cleanup() sweep,
which adapters invoke at the start of each fetch cycle. There is no
background cleanup goroutine and no per-access sweep.

# Known limitation

Concurrent identical misses are not coalesced (no single-flight): two
simultaneous callers with the same key both miss and both call upstream.
This is acceptable for a low-concurrency dashboard workload and keeps the
implementation simple.

# Usage

	c := cache.New(time.Hour)
	key := cache.GenerateKey("plex.page", pageParams)
	if v, ok := c.Get(key); ok {
	    return v.([]PlexMetadata), nil
	}
	items, err := client.ListPage(ctx, pageParams)
	if err == nil {
	    c.Set(key, items)
	}
*/
package cache
