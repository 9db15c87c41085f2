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

package health

import (
	"context"
	"time"

	"github.com/sage-x-project/agenthost/pkg/catalog"
)

// ExecutorProbe is the slice of Executor the health checker needs; kept
// narrow so this package never imports pkg/executor.
type ExecutorProbe interface {
	ActiveCount() int
}

// CatalogProbe is the slice of catalog.Store the health checker needs to
// confirm the backing store still answers.
type CatalogProbe interface {
	List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error)
}

// Checker performs health checks against the running host process.
type Checker struct {
	executor ExecutorProbe
	catalog  CatalogProbe
}

// NewChecker creates a health checker. Either probe may be nil. The
// executor section of the report is omitted only when both are nil; a
// nil catalog probe reports the catalog as reachable, and a nil
// executor probe reports zero active agents.
func NewChecker(executor ExecutorProbe, catalog CatalogProbe) *Checker {
	return &Checker{executor: executor, catalog: catalog}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Errors:    make([]string, 0),
	}

	if c.executor != nil || c.catalog != nil {
		status.ExecutorStatus = c.checkExecutor(ctx)
		if status.ExecutorStatus.Status != StatusHealthy {
			status.Status = status.ExecutorStatus.Status
			if status.ExecutorStatus.Error != "" {
				status.Errors = append(status.Errors, "Executor: "+status.ExecutorStatus.Error)
			}
		}
	}

	status.SystemStatus = CheckSystem()
	if status.SystemStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy {
			status.Status = status.SystemStatus.Status
		} else if status.SystemStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
		if status.SystemStatus.Error != "" {
			status.Errors = append(status.Errors, "System: "+status.SystemStatus.Error)
		}
	}

	return status
}

func (c *Checker) checkExecutor(ctx context.Context) *ExecutorHealth {
	// CatalogReachable defaults to true when no catalog probe is wired,
	// so its absence never drags readiness down.
	eh := &ExecutorHealth{Status: StatusHealthy, CatalogReachable: true}

	if c.executor != nil {
		eh.ActiveAgents = c.executor.ActiveCount()
	}

	if c.catalog != nil {
		if _, err := c.catalog.List(ctx, "__health_probe__"); err != nil {
			eh.CatalogReachable = false
			eh.Status = StatusUnhealthy
			eh.Error = err.Error()
			return eh
		}
	}

	return eh
}
