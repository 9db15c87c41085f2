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
	// AgentsActive tracks currently activated agent instances.
	AgentsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "agents_active",
			Help:      "Number of currently activated agent instances",
		},
	)

	// Activations tracks activate() outcomes.
	Activations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "activations_total",
			Help:      "Total number of agent activation attempts",
		},
		[]string{"result"}, // ok, already_active, timeout, init_failed
	)

	// Deactivations tracks deactivate() causes.
	Deactivations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "deactivations_total",
			Help:      "Total number of agent deactivations",
		},
		[]string{"reason"}, // requested, circuit_breaker, call_timeout, shutdown
	)

	// Ticks tracks on_tick call outcomes.
	Ticks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "ticks_total",
			Help:      "Total number of on_tick dispatches",
		},
		[]string{"result"}, // ok, failed, timeout
	)

	// TickDuration tracks on_tick call latency.
	TickDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tick_duration_seconds",
			Help:      "Duration of on_tick calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		},
	)

	// CircuitBreakerTrips tracks instances deactivated by the consecutive
	// tick-failure circuit breaker.
	CircuitBreakerTrips = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of instances deactivated by the tick failure circuit breaker",
		},
	)

	// TaskEventDispatches tracks on_task_event fan-out outcomes.
	TaskEventDispatches = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "task_event_dispatches_total",
			Help:      "Total number of on_task_event dispatches across all instances",
		},
		[]string{"result"}, // ok, failed, timeout
	)

	// CallTimeouts tracks the main-thread timeout-and-terminate preemption path.
	CallTimeouts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "call_timeouts_total",
			Help:      "Total number of worker calls that hit CALL_TIMEOUT_MS and were preempted",
		},
		[]string{"call"}, // instantiate, init, on_tick, on_task_event, update_context
	)
)
