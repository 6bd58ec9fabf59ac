// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version string

	ListenAddr      string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogService      string
	LogFormat       string // auto, json or console

	// ProfilesPath points at the profiles YAML. Empty selects the built-in profiles.
	ProfilesPath  string
	WatchProfiles bool

	Extractor  ExtractorConfig
	Transcoder TranscoderConfig
	Pipeline   PipelineConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig

	MetricsEnabled bool
}

// ExtractorConfig configures the stage-1 binary.
type ExtractorConfig struct {
	Bin               string
	SourceURLTemplate string
	Concurrency       int // 0 selects runtime.NumCPU()
}

// TranscoderConfig configures the stage-2 binary.
type TranscoderConfig struct {
	Bin              string
	PostprocessorTag string
}

// PipelineConfig holds per-request supervision limits.
type PipelineConfig struct {
	DiagnosticLines int
	KillGrace       time.Duration
}

// RateLimitConfig bounds audio requests per client IP and, across all clients, the rate at
// which new pipelines may be admitted.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration

	GlobalRate  float64 // admissions per second; 0 disables
	GlobalBurst int
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Environment  string
	ExporterType string
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the on-disk YAML or TOML shape. Pointer fields distinguish "unset" from zero values.
type FileConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty" toml:"listenAddr,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`
	LogLevel        string `yaml:"logLevel,omitempty" toml:"logLevel,omitempty"`
	LogService      string `yaml:"logService,omitempty" toml:"logService,omitempty"`
	LogFormat       string `yaml:"logFormat,omitempty" toml:"logFormat,omitempty"`
	ProfilesPath    string `yaml:"profilesPath,omitempty" toml:"profilesPath,omitempty"`
	WatchProfiles   *bool  `yaml:"watchProfiles,omitempty" toml:"watchProfiles,omitempty"`

	Extractor struct {
		Bin               string `yaml:"bin,omitempty" toml:"bin,omitempty"`
		SourceURLTemplate string `yaml:"sourceUrlTemplate,omitempty" toml:"sourceUrlTemplate,omitempty"`
		Concurrency       *int   `yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	} `yaml:"extractor,omitempty" toml:"extractor,omitempty"`

	Transcoder struct {
		Bin              string `yaml:"bin,omitempty" toml:"bin,omitempty"`
		PostprocessorTag string `yaml:"postprocessorTag,omitempty" toml:"postprocessorTag,omitempty"`
	} `yaml:"transcoder,omitempty" toml:"transcoder,omitempty"`

	Pipeline struct {
		DiagnosticLines *int   `yaml:"diagnosticLines,omitempty" toml:"diagnosticLines,omitempty"`
		KillGrace       string `yaml:"killGrace,omitempty" toml:"killGrace,omitempty"`
	} `yaml:"pipeline,omitempty" toml:"pipeline,omitempty"`

	RateLimit struct {
		Enabled  *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
		Requests *int   `yaml:"requests,omitempty" toml:"requests,omitempty"`
		Window   string `yaml:"window,omitempty" toml:"window,omitempty"`

		GlobalRate  *float64 `yaml:"globalRate,omitempty" toml:"globalRate,omitempty"`
		GlobalBurst *int     `yaml:"globalBurst,omitempty" toml:"globalBurst,omitempty"`
	} `yaml:"rateLimit,omitempty" toml:"rateLimit,omitempty"`

	Metrics struct {
		Enabled *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	} `yaml:"metrics,omitempty" toml:"metrics,omitempty"`

	Telemetry struct {
		Enabled      *bool    `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
		Environment  string   `yaml:"environment,omitempty" toml:"environment,omitempty"`
		Exporter     string   `yaml:"exporter,omitempty" toml:"exporter,omitempty"`
		Endpoint     string   `yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
		SamplingRate *float64 `yaml:"samplingRate,omitempty" toml:"samplingRate,omitempty"`
	} `yaml:"telemetry,omitempty" toml:"telemetry,omitempty"`
}
