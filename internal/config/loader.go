// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr        = ":8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogService        = "podstream"
	DefaultLogFormat         = "auto"
	DefaultExtractorBin      = "yt-dlp"
	DefaultTranscoderBin     = "ffmpeg"
	DefaultSourceURLTemplate = "https://www.youtube.com/watch?v=%s"
	DefaultPostprocessorTag  = "ffmpeg"
	DefaultDiagnosticLines   = 64
	DefaultKillGrace         = 5 * time.Second
	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = time.Minute
	DefaultGlobalRate        = 5.0
	DefaultGlobalBurst       = 10
	DefaultOTLPEndpoint      = "localhost:4317"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is fixed: defaults, strict file parse, env overrides, validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := l.defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if cfg.ProfilesPath != "" {
		if abs, err := filepath.Abs(cfg.ProfilesPath); err == nil {
			cfg.ProfilesPath = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) defaults() AppConfig {
	return AppConfig{
		Version:         l.version,
		ListenAddr:      DefaultListenAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        DefaultLogLevel,
		LogService:      DefaultLogService,
		LogFormat:       DefaultLogFormat,
		WatchProfiles:   true,
		Extractor: ExtractorConfig{
			Bin:               DefaultExtractorBin,
			SourceURLTemplate: DefaultSourceURLTemplate,
		},
		Transcoder: TranscoderConfig{
			Bin:              DefaultTranscoderBin,
			PostprocessorTag: DefaultPostprocessorTag,
		},
		Pipeline: PipelineConfig{
			DiagnosticLines: DefaultDiagnosticLines,
			KillGrace:       DefaultKillGrace,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: DefaultRateLimitRequests,
			Window:   DefaultRateLimitWindow,

			GlobalRate:  DefaultGlobalRate,
			GlobalBurst: DefaultGlobalBurst,
		},
		Telemetry: TelemetryConfig{
			ExporterType: "grpc",
			Endpoint:     DefaultOTLPEndpoint,
			SamplingRate: 1.0,
			Environment:  "production",
		},
		MetricsEnabled: true,
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
		return nil, fmt.Errorf("%w: %s (YAML or TOML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if ext == ".toml" {
		return ParseTOML(data)
	}
	return ParseFile(data)
}

// ParseTOML decodes a TOML config strictly. Unknown keys fail with ErrUnknownConfigField.
func ParseTOML(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&fileCfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("strict config parse error: %w: %s", ErrUnknownConfigField, strict.String())
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	return &fileCfg, nil
}

// ParseFile decodes one strict YAML document. Empty input yields an empty FileConfig.
func ParseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.ListenAddr, src.ListenAddr)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogService, src.LogService)
	setString(&dst.LogFormat, src.LogFormat)
	setString(&dst.ProfilesPath, os.ExpandEnv(src.ProfilesPath))
	setBool(&dst.WatchProfiles, src.WatchProfiles)
	if err := setDuration(&dst.ShutdownTimeout, "shutdownTimeout", src.ShutdownTimeout); err != nil {
		return err
	}

	setString(&dst.Extractor.Bin, src.Extractor.Bin)
	setString(&dst.Extractor.SourceURLTemplate, src.Extractor.SourceURLTemplate)
	setInt(&dst.Extractor.Concurrency, src.Extractor.Concurrency)

	setString(&dst.Transcoder.Bin, src.Transcoder.Bin)
	setString(&dst.Transcoder.PostprocessorTag, src.Transcoder.PostprocessorTag)

	setInt(&dst.Pipeline.DiagnosticLines, src.Pipeline.DiagnosticLines)
	if err := setDuration(&dst.Pipeline.KillGrace, "pipeline.killGrace", src.Pipeline.KillGrace); err != nil {
		return err
	}

	setBool(&dst.RateLimit.Enabled, src.RateLimit.Enabled)
	setInt(&dst.RateLimit.Requests, src.RateLimit.Requests)
	if err := setDuration(&dst.RateLimit.Window, "rateLimit.window", src.RateLimit.Window); err != nil {
		return err
	}
	if src.RateLimit.GlobalRate != nil {
		dst.RateLimit.GlobalRate = *src.RateLimit.GlobalRate
	}
	setInt(&dst.RateLimit.GlobalBurst, src.RateLimit.GlobalBurst)

	setBool(&dst.MetricsEnabled, src.Metrics.Enabled)

	setBool(&dst.Telemetry.Enabled, src.Telemetry.Enabled)
	setString(&dst.Telemetry.Environment, src.Telemetry.Environment)
	setString(&dst.Telemetry.ExporterType, src.Telemetry.Exporter)
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	if src.Telemetry.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *src.Telemetry.SamplingRate
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.ListenAddr = l.envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)
	cfg.LogFormat = l.envString("LOG_FORMAT", cfg.LogFormat)
	cfg.ProfilesPath = l.envString("PROFILES_PATH", cfg.ProfilesPath)
	cfg.WatchProfiles = l.envBool("WATCH_PROFILES", cfg.WatchProfiles)

	cfg.Extractor.Bin = l.envString("EXTRACTOR_BIN", cfg.Extractor.Bin)
	cfg.Extractor.SourceURLTemplate = l.envString("SOURCE_URL_TEMPLATE", cfg.Extractor.SourceURLTemplate)
	cfg.Extractor.Concurrency = l.envInt("EXTRACTOR_CONCURRENCY", cfg.Extractor.Concurrency)

	cfg.Transcoder.Bin = l.envString("TRANSCODER_BIN", cfg.Transcoder.Bin)
	cfg.Transcoder.PostprocessorTag = l.envString("POSTPROCESSOR_TAG", cfg.Transcoder.PostprocessorTag)

	cfg.Pipeline.DiagnosticLines = l.envInt("DIAGNOSTIC_LINES", cfg.Pipeline.DiagnosticLines)
	cfg.Pipeline.KillGrace = l.envDuration("KILL_GRACE", cfg.Pipeline.KillGrace)

	cfg.RateLimit.Enabled = l.envBool("RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = l.envInt("RATELIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = l.envDuration("RATELIMIT_WINDOW", cfg.RateLimit.Window)
	cfg.RateLimit.GlobalRate = l.envFloat("RATELIMIT_GLOBAL_RATE", cfg.RateLimit.GlobalRate)
	cfg.RateLimit.GlobalBurst = l.envInt("RATELIMIT_GLOBAL_BURST", cfg.RateLimit.GlobalBurst)

	cfg.MetricsEnabled = l.envBool("METRICS_ENABLED", cfg.MetricsEnabled)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Environment = l.envString("ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.ExporterType = l.envString("OTLP_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TRACE_SAMPLING", cfg.Telemetry.SamplingRate)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
