// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ManuGH/podstream/internal/api"
	"github.com/ManuGH/podstream/internal/config"
	"github.com/ManuGH/podstream/internal/health"
	xglog "github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/ManuGH/podstream/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const telemetryShutdownTimeout = 5 * time.Second

// run wires every component and serves until ctx is done. onListen, if set, receives the
// bound address once the listener is open.
func run(ctx context.Context, cfg config.AppConfig, onListen func(net.Addr)) error {
	logger := xglog.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	reg, err := profiles.NewRegistry(cfg.ProfilesPath)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	logger.Info().
		Str(xglog.FieldEvent, "profiles.loaded").
		Int("count", reg.Len()).
		Msg("profiles loaded")

	runner := pipeline.NewRunner(cfg.RunnerConfig())

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewBinaryChecker("extractor", cfg.Extractor.Bin))
	hm.RegisterChecker(health.NewBinaryChecker("transcoder", cfg.Transcoder.Bin))
	hm.RegisterChecker(health.NewCountChecker("profiles", "profiles", reg.Len))

	srv := api.New(serverConfig(cfg), runner, reg, hm)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	if onListen != nil {
		onListen(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	if cfg.WatchProfiles && reg.Path() != "" {
		g.Go(func() error {
			return reg.Watch(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func serverConfig(cfg config.AppConfig) api.Config {
	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = cfg.LogService
	}
	return api.Config{
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MetricsEnabled:  cfg.MetricsEnabled,
		TracingService:  tracingService,
		RateLimit: api.RateLimitConfig{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,

			GlobalRate:  cfg.RateLimit.GlobalRate,
			GlobalBurst: cfg.RateLimit.GlobalBurst,
		},
	}
}
