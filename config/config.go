// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads per-project configuration from solidlsp.yml, with
// environment overrides under the SOLIDLSP_ prefix and code defaults for
// everything optional.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tessellate-ai/solidlsp/router"
)

// ConfigFileName is looked up in the project root.
const ConfigFileName = "solidlsp"

// Timeouts groups the operation timeout classes.
type Timeouts struct {
	// Request bounds fast per-document queries.
	Request time.Duration `mapstructure:"request"`

	// LongRequest bounds whole-project operations such as rename.
	LongRequest time.Duration `mapstructure:"long_request"`

	// Startup bounds process launch plus the initialize handshake.
	Startup time.Duration `mapstructure:"startup"`
}

// ServerConfig describes how to launch one language's server.
type ServerConfig struct {
	// Command is the server executable.
	Command string `mapstructure:"command"`

	// Args are passed to the executable.
	Args []string `mapstructure:"args"`

	// Env is extra environment in KEY=VALUE form.
	Env []string `mapstructure:"env"`

	// InitializationOptions are passed verbatim in the initialize request.
	InitializationOptions map[string]any `mapstructure:"initialization_options"`
}

// RouteConfig is one glob route entry.
type RouteConfig struct {
	Pattern  string `mapstructure:"pattern"`
	Language string `mapstructure:"language"`
}

// Config is the full project configuration.
type Config struct {
	// Languages are the active languages, in configuration order.
	Languages []string `mapstructure:"languages"`

	// Servers maps language id to launch configuration. Languages without
	// an entry fall back to the built-in default command.
	Servers map[string]ServerConfig `mapstructure:"servers"`

	// Routes are glob overrides consulted before the extension table.
	Routes []RouteConfig `mapstructure:"routes"`

	// Timeouts are the operation timeout classes.
	Timeouts Timeouts `mapstructure:"timeouts"`

	// IndexPath enables the persisted symbol index when non-empty,
	// relative to the project root.
	IndexPath string `mapstructure:"index_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Servers: make(map[string]ServerConfig),
		Timeouts: Timeouts{
			Request:     15 * time.Second,
			LongRequest: 2 * time.Minute,
			Startup:     60 * time.Second,
		},
	}
}

// Load reads solidlsp.yml from the project root. A missing file is not an
// error; defaults apply. Environment variables override file values, e.g.
// SOLIDLSP_TIMEOUTS_REQUEST=30s.
func Load(rootPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(rootPath)
	v.SetEnvPrefix("SOLIDLSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timeouts.request", "15s")
	v.SetDefault("timeouts.long_request", "2m")
	v.SetDefault("timeouts.startup", "60s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("No solidlsp.yml found, using defaults", slog.String("root", rootPath))
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the router would choke on at runtime.
func (c *Config) validate() error {
	for _, lang := range c.Languages {
		if _, ok := router.Catalog[lang]; !ok {
			return fmt.Errorf("unknown language %q", lang)
		}
	}
	for _, r := range c.Routes {
		if r.Pattern == "" || r.Language == "" {
			return fmt.Errorf("route entries need both pattern and language: %+v", r)
		}
	}
	if c.Timeouts.Request <= 0 || c.Timeouts.Startup <= 0 {
		return fmt.Errorf("timeouts must be positive: %+v", c.Timeouts)
	}
	return nil
}

// RouterRoutes converts the configured routes for router.New.
func (c *Config) RouterRoutes() []router.Route {
	out := make([]router.Route, len(c.Routes))
	for i, r := range c.Routes {
		out[i] = router.Route{Pattern: r.Pattern, Language: r.Language}
	}
	return out
}
