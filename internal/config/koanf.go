// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sonicsync/config.yaml",
	"/etc/sonicsync/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration with layered sources (highest priority wins):
//
//	environment variables > config file > built-in defaults
//
// The loaded configuration is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; split known slice fields on commas.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"auth.scopes",
	"spotify.scopes",
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values to slices for known fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables map to "" and are skipped, so arbitrary environment
// noise never pollutes the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Server
		"http_host":        "server.host",
		"http_port":        "server.port",
		"http_timeout":     "server.timeout",
		"shutdown_timeout": "server.shutdown_timeout",

		// Identity provider
		"auth_client_id":     "auth.client_id",
		"auth_client_secret": "auth.client_secret",
		"auth_auth_url":      "auth.auth_url",
		"auth_token_url":     "auth.token_url",
		"auth_userinfo_url":  "auth.userinfo_url",
		"auth_logout_url":    "auth.logout_url",
		"auth_redirect_url":  "auth.redirect_url",
		"auth_scopes":        "auth.scopes",

		// Spotify
		"spotify_client_id":     "spotify.client_id",
		"spotify_client_secret": "spotify.client_secret",
		"spotify_redirect_url":  "spotify.redirect_url",
		"spotify_scopes":        "spotify.scopes",
		"spotify_api_base_url":  "spotify.api_base_url",
		"spotify_timeout":       "spotify.timeout",

		// Rate limiting
		"rate_limit_requests":      "rate_limit.max_requests",
		"rate_limit_window":        "rate_limit.window",
		"rate_limit_http_requests": "rate_limit.http_requests",
		"rate_limit_http_window":   "rate_limit.http_window",

		// Presence sweeper
		"presence_sweep_enabled":  "presence.sweep_enabled",
		"presence_sweep_interval": "presence.sweep_interval",
		"presence_max_idle":       "presence.max_idle",

		// Security
		"session_secret":  "security.session_secret",
		"cookie_name":     "security.cookie_name",
		"cookie_secure":   "security.cookie_secure",
		"session_max_age": "security.session_max_age",
		"cors_origins":    "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
