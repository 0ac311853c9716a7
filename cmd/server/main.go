// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/posterrama/posterrama/internal/api"
	"github.com/posterrama/posterrama/internal/config"
	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
	"github.com/posterrama/posterrama/internal/source/jellyfin"
	"github.com/posterrama/posterrama/internal/source/local"
	"github.com/posterrama/posterrama/internal/source/plex"
	"github.com/posterrama/posterrama/internal/source/romm"
	"github.com/posterrama/posterrama/internal/source/tmdb"
	"github.com/posterrama/posterrama/internal/source/tvdb"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Int("sources", cfg.SourceCount()).
		Int("port", cfg.Server.Port).
		Msg("Starting posterrama")

	manager, err := buildManager(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(api.Config{
			CORSOrigins:     cfg.Server.CORSOrigins,
			RateLimit:       cfg.Server.RateLimit,
			RateLimitWindow: cfg.Server.RateLimitWindow,
		}, manager),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}

// buildManager constructs every configured source adapter and registers
// it. A single misconfigured source aborts startup; better to fail loud
// than serve a silently incomplete aggregate.
func buildManager(cfg *config.Config) (*source.Manager, error) {
	manager := source.NewManager(cfg.Breaker)

	for _, sc := range cfg.Sources.Plex {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("plex", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		sc.Retry = mergeRetry(sc.Retry, cfg.Retry)
		a, err := plex.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Sources.Jellyfin {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("jellyfin", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		sc.Retry = mergeRetry(sc.Retry, cfg.Retry)
		a, err := jellyfin.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Sources.TMDB {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("tmdb", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		sc.Retry = mergeRetry(sc.Retry, cfg.Retry)
		a, err := tmdb.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Sources.TVDB {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("tvdb", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		sc.Retry = mergeRetry(sc.Retry, cfg.Retry)
		a, err := tvdb.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Sources.RomM {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("romm", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		sc.Retry = mergeRetry(sc.Retry, cfg.Retry)
		a, err := romm.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Sources.Local {
		if !source.Enabled(sc.Enabled) {
			if err := manager.RegisterDisabled("local", sc.Name); err != nil {
				return nil, err
			}
			continue
		}
		a, err := local.New(sc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(a); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

// mergeRetry fills a source's unset retry fields from the global config.
func mergeRetry(sc, global retry.Config) retry.Config {
	if sc.MaxRetries == 0 {
		sc.MaxRetries = global.MaxRetries
	}
	if sc.BaseDelay == 0 {
		sc.BaseDelay = global.BaseDelay
	}
	if sc.Multiplier == 0 {
		sc.Multiplier = global.Multiplier
	}
	if sc.MaxDelay == 0 {
		sc.MaxDelay = global.MaxDelay
	}
	return sc
}
