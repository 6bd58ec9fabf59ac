// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/ManuGH/podstream/internal/validate"
	"github.com/rs/zerolog"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.PositiveDuration("ShutdownTimeout", cfg.ShutdownTimeout)
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("LogLevel", err.Error(), cfg.LogLevel)
	}
	v.OneOf("LogFormat", cfg.LogFormat, []string{"auto", "json", "console"})

	v.NotEmpty("Extractor.Bin", cfg.Extractor.Bin)
	v.URLTemplate("Extractor.SourceURLTemplate", cfg.Extractor.SourceURLTemplate, []string{"http", "https"})
	v.Range("Extractor.Concurrency", cfg.Extractor.Concurrency, 0, 64)

	v.NotEmpty("Transcoder.Bin", cfg.Transcoder.Bin)
	if strings.ContainsAny(cfg.Transcoder.PostprocessorTag, ": \t") {
		v.AddError("Transcoder.PostprocessorTag", "tag must not contain ':' or whitespace", cfg.Transcoder.PostprocessorTag)
	}

	v.Range("Pipeline.DiagnosticLines", cfg.Pipeline.DiagnosticLines, 1, 4096)
	v.PositiveDuration("Pipeline.KillGrace", cfg.Pipeline.KillGrace)

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.Requests", cfg.RateLimit.Requests)
		v.PositiveDuration("RateLimit.Window", cfg.RateLimit.Window)
		v.FloatRange("RateLimit.GlobalRate", cfg.RateLimit.GlobalRate, 0, 10000)
		if cfg.RateLimit.GlobalRate > 0 {
			v.Positive("RateLimit.GlobalBurst", cfg.RateLimit.GlobalBurst)
		}
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.ExporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
