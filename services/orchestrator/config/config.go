// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the orchestrator configuration: environment
// variables first, plus an optional YAML settings file for the tunables
// that operators change without redeploying.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the optional YAML settings file (SETTINGS_FILE).
type Settings struct {
	Generation struct {
		// Strategy: "" (prefer remote), "ollama", "gpt", or "longer".
		Strategy  string `yaml:"strategy"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"generation"`

	Guardrail struct {
		// RulesFile overrides the built-in review rules; hot-reloaded.
		RulesFile   string `yaml:"rules_file"`
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"guardrail"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Config is the assembled process configuration.
type Config struct {
	Port             string
	DBPath           string
	DeploymentSecret string
	ScorerURL        string

	Settings Settings
}

// Load reads the environment and the optional settings file. Missing
// values fall back to development defaults with a warning; only a
// malformed settings file is an error.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             envOr("ORCHESTRATOR_PORT", "12310"),
		DBPath:           envOr("SOULBUDDY_DB_PATH", "soulbuddy.db"),
		DeploymentSecret: os.Getenv("SOULBUDDY_DEPLOYMENT_SECRET"),
		ScorerURL:        envOr("CLASSIFIER_SERVICE_URL", "http://localhost:9090"),
	}

	if cfg.DeploymentSecret == "" {
		slog.Warn("SOULBUDDY_DEPLOYMENT_SECRET is not set, using development secret; " +
			"stored messages will not survive a secret rotation")
		cfg.DeploymentSecret = "dev-only-secret"
	}

	cfg.Settings.RateLimit.RPS = 5
	cfg.Settings.RateLimit.Burst = 10

	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg.Settings); err != nil {
			return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
		}
		slog.Info("loaded settings file", "path", path)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Warn("environment variable not set, using default", "key", key, "default", fallback)
	return fallback
}
