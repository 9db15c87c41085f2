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

package config

import "fmt"

// ValidationIssue is one finding from ValidateConfiguration. Level
// "error" fails Load; "warning" is informational only.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string // error, warning
}

// ValidateConfiguration checks cfg against the invariants the loader and
// executor depend on. It never mutates cfg.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Module.RequireSignedModules && cfg.Module.TrustedSigningKey == "" {
		issues = append(issues, ValidationIssue{
			Field:   "module.trusted_signing_key",
			Message: "require_signed_modules is true but no trusted signing key is configured",
			Level:   "error",
		})
	}

	if cfg.Module.MaxModuleBytes <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.max_module_bytes",
			Message: "must be positive",
			Level:   "error",
		})
	}
	if cfg.Module.MaxStateBytes <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.max_state_bytes",
			Message: "must be positive",
			Level:   "error",
		})
	}
	if cfg.Module.MaxMemoryPages <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.max_memory_pages",
			Message: "must be positive",
			Level:   "error",
		})
	}
	if cfg.Module.TickIntervalMs <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.tick_interval_ms",
			Message: "must be positive",
			Level:   "error",
		})
	}
	if cfg.Module.CallTimeoutMs <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.call_timeout_ms",
			Message: "must be positive",
			Level:   "error",
		})
	}
	if cfg.Module.CallTimeoutMs >= cfg.Module.TickIntervalMs {
		issues = append(issues, ValidationIssue{
			Field:   "module.call_timeout_ms",
			Message: fmt.Sprintf("call_timeout_ms (%d) should be smaller than tick_interval_ms (%d)", cfg.Module.CallTimeoutMs, cfg.Module.TickIntervalMs),
			Level:   "warning",
		})
	}
	if cfg.Module.MaxTickFailures <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "module.max_tick_failures",
			Message: "must be positive",
			Level:   "error",
		})
	}

	switch cfg.Store.Type {
	case "memory":
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			issues = append(issues, ValidationIssue{
				Field:   "store.postgres_dsn",
				Message: "store.type is postgres but postgres_dsn is empty",
				Level:   "error",
			})
		}
	default:
		issues = append(issues, ValidationIssue{
			Field:   "store.type",
			Message: fmt.Sprintf("unknown store type %q, want memory or postgres", cfg.Store.Type),
			Level:   "error",
		})
	}

	if cfg.AdminAPI.Enabled && cfg.AdminAPI.JWTSecret == "" {
		issues = append(issues, ValidationIssue{
			Field:   "admin_api.jwt_secret",
			Message: "admin_api is enabled but no jwt_secret is configured",
			Level:   "error",
		})
	}

	return issues
}
