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

// Package metrics exposes the host's Prometheus instrumentation: the
// executor's tick/circuit-breaker outcomes, the host ABI's event
// emission/rejection counts, and the state engine's store I/O.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "agenthost"

// Registry is the Prometheus registry the process's collectors register
// against. It is process-wide by design: the executor, loader and state
// engine are constructed once per process and share it, mirroring the
// teacher's single `Registry` used across its crypto/session/handshake
// metric files.
var Registry = prometheus.NewRegistry()
