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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEmitted tracks host_emit_event outcomes after validation.
	EventsEmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hostabi",
			Name:      "events_emitted_total",
			Help:      "Total number of task events accepted by host_emit_event",
		},
		[]string{"type"},
	)

	// EventsRejected tracks dropped host_emit_event payloads.
	EventsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hostabi",
			Name:      "events_rejected_total",
			Help:      "Total number of task events dropped by host_emit_event validation",
		},
		[]string{"reason"}, // unknown_type, missing_task_id, unknown_task_id
	)

	// HostCalls tracks invocations of each host import, gated or not.
	HostCalls = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hostabi",
			Name:      "host_calls_total",
			Help:      "Total number of host import invocations",
		},
		[]string{"function", "result"}, // result: ok, denied, bounds_error, dropped
	)
)
