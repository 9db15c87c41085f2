// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config provides configuration management for the agent host.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration struct. Module carries the
// sandbox tunables; the rest are ambient sections.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Module      ModuleConfig   `yaml:"module" json:"module"`
	Store       StoreConfig    `yaml:"store" json:"store"`
	AdminAPI    AdminAPIConfig `yaml:"admin_api" json:"admin_api"`
	Logging     LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      HealthConfig   `yaml:"health" json:"health"`
}

// ModuleConfig carries the module lifecycle tunables.
type ModuleConfig struct {
	TrustedSigningKey    string `yaml:"trusted_signing_key" json:"trusted_signing_key"`
	RequireSignedModules bool   `yaml:"require_signed_modules" json:"require_signed_modules"`
	TickIntervalMs       int    `yaml:"tick_interval_ms" json:"tick_interval_ms"`
	CallTimeoutMs        int    `yaml:"call_timeout_ms" json:"call_timeout_ms"`
	MaxModuleBytes       int    `yaml:"max_module_bytes" json:"max_module_bytes"`
	MaxStateBytes        int    `yaml:"max_state_bytes" json:"max_state_bytes"`
	MaxMemoryPages       int    `yaml:"max_memory_pages" json:"max_memory_pages"`
	MaxTickFailures      int    `yaml:"max_tick_failures" json:"max_tick_failures"`
}

// StoreConfig selects and configures the catalog / state store backend.
type StoreConfig struct {
	Type         string `yaml:"type" json:"type"` // memory, postgres
	PostgresDSN  string `yaml:"postgres_dsn" json:"postgres_dsn"`
	StateSeedEnv string `yaml:"state_seed_env" json:"state_seed_env"`
}

// AdminAPIConfig configures the HTTP admin API.
type AdminAPIConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Addr      string `yaml:"addr" json:"addr"`
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// LoadFromFile loads configuration from a file, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults fills every zero-valued field with its documented
// default.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Module.TickIntervalMs == 0 {
		cfg.Module.TickIntervalMs = 30000
	}
	if cfg.Module.CallTimeoutMs == 0 {
		cfg.Module.CallTimeoutMs = 5000
	}
	if cfg.Module.MaxModuleBytes == 0 {
		cfg.Module.MaxModuleBytes = 512000
	}
	if cfg.Module.MaxStateBytes == 0 {
		cfg.Module.MaxStateBytes = 1048576
	}
	if cfg.Module.MaxMemoryPages == 0 {
		cfg.Module.MaxMemoryPages = 160
	}
	if cfg.Module.MaxTickFailures == 0 {
		cfg.Module.MaxTickFailures = 3
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}

	if cfg.AdminAPI.Addr == "" {
		cfg.AdminAPI.Addr = ":8090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8091
	}
}
