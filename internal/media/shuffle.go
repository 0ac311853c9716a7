// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package media

import "math/rand"

// Shuffle performs an in-place Fisher-Yates shuffle.
func Shuffle(items []Item) {
	for i := len(items) - 1; i > 0; i-- {
		j := rand.Intn(i + 1) //nolint:gosec // sampling posters, not secrets
		items[i], items[j] = items[j], items[i]
	}
}

// Sample returns at most count items drawn in random order. The input
// slice is left untouched, so callers can safely sample cached results.
// A non-positive count returns an empty slice.
func Sample(items []Item, count int) []Item {
	if count <= 0 {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	Shuffle(out)
	if len(out) > count {
		return out[:count]
	}
	return out
}
