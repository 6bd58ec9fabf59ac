// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/podstream/internal/config"
	xglog "github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/ManuGH/podstream/internal/version"
)

// maskURL removes user info and query from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		case "profiles":
			os.Exit(runProfilesCLI(os.Args[2:], os.Stdout))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	initProfiles := flag.String("init-profiles", "", "write the built-in profiles to this path and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if path := strings.TrimSpace(*initProfiles); path != "" {
		if err := profiles.WriteFile(path, profiles.Defaults()); err != nil {
			fmt.Fprintf(os.Stderr, "write profiles: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote built-in profiles to %s\n", path)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: config.DefaultLogService,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration with precedence: ENV > File > Defaults
	explicitConfigPath := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(explicitConfigPath, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", explicitConfigPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
		Format:  cfg.LogFormat,
	})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if explicitConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", explicitConfigPath).
		Msg("configuration loaded")

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Msg("starting podstream")
	logger.Info().Msgf("→ Extractor: %s (source: %s)", cfg.Extractor.Bin, maskURL(cfg.Extractor.SourceURLTemplate))
	logger.Info().Msgf("→ Transcoder: %s (tag: %s)", cfg.Transcoder.Bin, cfg.Transcoder.PostprocessorTag)
	if cfg.ProfilesPath != "" {
		logger.Info().Msgf("→ Profiles: %s (watch: %v)", cfg.ProfilesPath, cfg.WatchProfiles)
	} else {
		logger.Info().Msg("→ Profiles: built-in")
	}
	if cfg.Telemetry.Enabled {
		logger.Info().Msgf("→ Tracing: %s via %s", maskURL(cfg.Telemetry.Endpoint), cfg.Telemetry.ExporterType)
	}

	if err := run(ctx, cfg, nil); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown.complete").Msg("server exited gracefully")
}
