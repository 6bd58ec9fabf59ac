// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/ManuGH/podstream/internal/telemetry"
)

// RunnerConfig maps the resolved settings onto the pipeline runner.
func (c AppConfig) RunnerConfig() pipeline.Config {
	return pipeline.Config{
		ExtractorPath:     c.Extractor.Bin,
		TranscoderPath:    c.Transcoder.Bin,
		SourceURLTemplate: c.Extractor.SourceURLTemplate,
		PostprocessorTag:  c.Transcoder.PostprocessorTag,
		DiagnosticLines:   c.Pipeline.DiagnosticLines,
		KillGrace:         c.Pipeline.KillGrace,
		Concurrency:       c.Extractor.Concurrency,
	}
}

// TelemetryConfig maps the resolved settings onto the tracer provider.
func (c AppConfig) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    c.LogService,
		ServiceVersion: c.Version,
		Environment:    c.Telemetry.Environment,
		ExporterType:   c.Telemetry.ExporterType,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}
