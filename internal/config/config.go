// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package config loads and validates server configuration via Koanf v2
// with layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Spotify   SpotifyConfig   `koanf:"spotify"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Presence  PresenceConfig  `koanf:"presence"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AuthConfig holds the identity provider OAuth settings. The provider is
// treated as an external collaborator: it supplies a stable subject string
// and profile fields after a standard authorization-code exchange.
type AuthConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	AuthURL      string   `koanf:"auth_url"`
	TokenURL     string   `koanf:"token_url"`
	UserInfoURL  string   `koanf:"userinfo_url"`
	LogoutURL    string   `koanf:"logout_url"`
	RedirectURL  string   `koanf:"redirect_url"`
	Scopes       []string `koanf:"scopes"`
}

// SpotifyConfig holds the Spotify OAuth and API settings used for the
// now-playing lookups.
type SpotifyConfig struct {
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RedirectURL  string        `koanf:"redirect_url"`
	Scopes       []string      `koanf:"scopes"`
	APIBaseURL   string        `koanf:"api_base_url"`
	Timeout      time.Duration `koanf:"timeout"`
}

// RateLimitConfig holds both the per-user track-lookup limiter settings and
// the HTTP-surface limits applied by go-chi/httprate.
type RateLimitConfig struct {
	// MaxRequests is the number of track lookups a single user may issue
	// within Window before admission is denied.
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`

	// HTTPRequests/HTTPWindow limit plain REST requests per client IP.
	HTTPRequests int           `koanf:"http_requests"`
	HTTPWindow   time.Duration `koanf:"http_window"`
}

// PresenceConfig holds the stale-entry sweeper settings. The sweeper is
// disabled by default: the reference behavior removes entries only on
// explicit logout or disconnect.
type PresenceConfig struct {
	SweepEnabled  bool          `koanf:"sweep_enabled"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxIdle       time.Duration `koanf:"max_idle"`
}

// SecurityConfig holds session and CORS settings.
type SecurityConfig struct {
	SessionSecret string        `koanf:"session_secret"`
	CookieName    string        `koanf:"cookie_name"`
	CookieSecure  bool          `koanf:"cookie_secure"`
	SessionMaxAge time.Duration `koanf:"session_max_age"`
	CORSOrigins   []string      `koanf:"cors_origins"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
// Defaults are layered first, then overridden by file and env sources.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Scopes: []string{"openid", "profile", "email"},
		},
		Spotify: SpotifyConfig{
			Scopes:     []string{"user-read-currently-playing"},
			APIBaseURL: "https://api.spotify.com",
			Timeout:    10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:  60,
			Window:       60 * time.Second,
			HTTPRequests: 100,
			HTTPWindow:   time.Minute,
		},
		Presence: PresenceConfig{
			SweepEnabled:  false,
			SweepInterval: time.Minute,
			MaxIdle:       10 * time.Minute,
		},
		Security: SecurityConfig{
			CookieName:    "sonic_session",
			CookieSecure:  true,
			SessionMaxAge: 24 * time.Hour,
			CORSOrigins:   []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Presence.SweepEnabled {
		if c.Presence.SweepInterval <= 0 {
			return fmt.Errorf("presence.sweep_interval must be positive when the sweeper is enabled")
		}
		if c.Presence.MaxIdle <= 0 {
			return fmt.Errorf("presence.max_idle must be positive when the sweeper is enabled")
		}
	}
	if c.Spotify.Timeout <= 0 {
		return fmt.Errorf("spotify.timeout must be positive, got %s", c.Spotify.Timeout)
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
