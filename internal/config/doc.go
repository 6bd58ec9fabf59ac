// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for podstream.
//
// Values resolve with precedence ENV > config file > defaults. Environment keys use the
// PODSTREAM_ prefix. The file is YAML (.yaml, .yml) or TOML (.toml), parsed strictly:
// unknown fields are rejected.
package config
