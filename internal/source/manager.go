// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/media"
)

// Request describes one aggregate fetch. Source selects by type ("plex"),
// SourceName narrows to one configured instance, and "all" (or empty)
// fans out to every registered adapter. Empty Libraries falls back to
// each adapter's configured defaults for the media type.
type Request struct {
	Source     string
	SourceName string
	Type       media.Type
	Count      int
	Libraries  []string
	Options    Options
}

// SourceInfo is the admin-facing description of one registered adapter.
type SourceInfo struct {
	Key          string `json:"key"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	BreakerState string `json:"breakerState,omitempty"`
}

// Manager owns the registered adapters, keyed "type:name", and fronts
// every fetch with that source's circuit breaker. Fan-out requests merge
// partial results: one failing source never voids the others.
type Manager struct {
	mu         sync.RWMutex
	adapters   map[string]Adapter
	breakers   map[string]*Breaker
	disabled   map[string]SourceInfo
	breakerCfg BreakerConfig
}

// NewManager builds an empty Manager; adapters are added via Register.
func NewManager(breakerCfg BreakerConfig) *Manager {
	return &Manager{
		adapters:   make(map[string]Adapter),
		breakers:   make(map[string]*Breaker),
		disabled:   make(map[string]SourceInfo),
		breakerCfg: breakerCfg,
	}
}

// Key builds the registry key for a source type and instance name.
func Key(sourceType, name string) string {
	return sourceType + ":" + name
}

// Enabled interprets a source config's enabled flag: an absent flag
// means the source is on.
func Enabled(v *bool) bool {
	return v == nil || *v
}

// Register adds an adapter under its type:name key.
func (m *Manager) Register(a Adapter) error {
	key := Key(a.Type(), a.Name())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.adapters[key]; exists {
		return fmt.Errorf("source %q already registered", key)
	}
	if _, exists := m.disabled[key]; exists {
		return fmt.Errorf("source %q already registered", key)
	}
	m.adapters[key] = a
	m.breakers[key] = NewBreaker(key, m.breakerCfg)

	logging.Info().Str("source", key).Msg("Registered media source")
	return nil
}

// RegisterDisabled records a configured-but-disabled source so it still
// shows up in the admin listing. Disabled sources never dispatch.
func (m *Manager) RegisterDisabled(sourceType, name string) error {
	key := Key(sourceType, name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.adapters[key]; exists {
		return fmt.Errorf("source %q already registered", key)
	}
	if _, exists := m.disabled[key]; exists {
		return fmt.Errorf("source %q already registered", key)
	}
	m.disabled[key] = SourceInfo{Key: key, Type: sourceType, Name: name}

	logging.Info().Str("source", key).Msg("Source disabled by configuration")
	return nil
}

// Get returns the adapter registered under key, if any.
func (m *Manager) Get(key string) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[key]
	return a, ok
}

// FetchMedia dispatches req to the matching adapters and returns up to
// req.Count merged, shuffled items. With multiple matching sources each
// is asked for the full count and failures are isolated per source; an
// error is returned only when every matching source failed and nothing
// was produced.
func (m *Manager) FetchMedia(ctx context.Context, req Request) ([]media.Item, error) {
	targets := m.resolve(req.Source, req.SourceName)
	if len(targets) == 0 {
		if req.Source == "" || strings.EqualFold(req.Source, "all") {
			return []media.Item{}, nil
		}
		return nil, fmt.Errorf("no source matches %q", req.Source)
	}
	if req.Count <= 0 {
		return []media.Item{}, nil
	}

	type result struct {
		key   string
		items []media.Item
		err   error
	}

	results := make(chan result, len(targets))
	var wg sync.WaitGroup
	for key, a := range targets {
		wg.Add(1)
		go func(key string, a Adapter) {
			defer wg.Done()

			libs := req.Libraries
			if len(libs) == 0 {
				libs = a.DefaultLibraries(req.Type)
			}

			breaker := m.breakerFor(key)
			items, err := breaker.Execute(func() ([]media.Item, error) {
				return a.FetchMedia(ctx, libs, req.Type, req.Count, req.Options)
			})
			results <- result{key: key, items: items, err: err}
		}(key, a)
	}
	wg.Wait()
	close(results)

	var merged []media.Item
	var failed int
	var lastErr error
	for r := range results {
		if r.err != nil {
			failed++
			lastErr = r.err
			logging.Warn().
				Str("source", r.key).
				Err(r.err).
				Msg("Source fetch failed, continuing with remaining sources")
			continue
		}
		merged = append(merged, r.items...)
	}

	if len(merged) == 0 && failed == len(targets) && lastErr != nil {
		return nil, fmt.Errorf("all %d matching sources failed: %w", failed, lastErr)
	}

	return media.Sample(merged, req.Count), nil
}

// resolve returns the adapters matching a source type and optional
// instance name. Source "all" or "" matches everything.
func (m *Manager) resolve(sourceType, name string) map[string]Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Adapter)
	for key, a := range m.adapters {
		if sourceType != "" && !strings.EqualFold(sourceType, "all") && !strings.EqualFold(a.Type(), sourceType) {
			continue
		}
		if name != "" && !strings.EqualFold(a.Name(), name) {
			continue
		}
		out[key] = a
	}
	return out
}

func (m *Manager) breakerFor(key string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[key]
}

// TestConnection checks one source's reachability.
func (m *Manager) TestConnection(ctx context.Context, key string) error {
	a, ok := m.Get(key)
	if !ok {
		return fmt.Errorf("unknown source %q", key)
	}
	return a.TestConnection(ctx)
}

// Sources lists every configured source, enabled or not, sorted by key.
func (m *Manager) Sources() []SourceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SourceInfo, 0, len(m.adapters)+len(m.disabled))
	for key, a := range m.adapters {
		out = append(out, SourceInfo{
			Key:          key,
			Type:         a.Type(),
			Name:         a.Name(),
			Enabled:      true,
			BreakerState: m.breakers[key].State(),
		})
	}
	for _, info := range m.disabled {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Platforms aggregates game platforms from every adapter that exposes
// them, keyed by source.
func (m *Manager) Platforms(ctx context.Context) (map[string][]Platform, error) {
	m.mu.RLock()
	listers := make(map[string]PlatformLister)
	for key, a := range m.adapters {
		if pl, ok := a.(PlatformLister); ok {
			listers[key] = pl
		}
	}
	m.mu.RUnlock()

	out := make(map[string][]Platform, len(listers))
	var lastErr error
	for key, pl := range listers {
		platforms, err := pl.Platforms(ctx)
		if err != nil {
			lastErr = err
			logging.Warn().Str("source", key).Err(err).Msg("Platform listing failed")
			continue
		}
		out[key] = platforms
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Metrics returns every adapter's counter snapshot, keyed by source.
func (m *Manager) Metrics() map[string]MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]MetricsSnapshot, len(m.adapters))
	for key, a := range m.adapters {
		out[key] = a.Metrics()
	}
	return out
}

// ResetMetrics zeroes every adapter's counters.
func (m *Manager) ResetMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.adapters {
		a.ResetMetrics()
	}
}
