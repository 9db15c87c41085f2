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
	// StateOperations tracks StateEngine encrypt/decrypt/save/load/delete calls.
	StateOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "operations_total",
			Help:      "Total number of state engine operations",
		},
		[]string{"operation", "result"}, // encrypt/decrypt/save/load/delete, ok/tampered/too_large/not_found/error
	)

	// StateBlobSize tracks the size of plaintext passed to encrypt.
	StateBlobSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "blob_size_bytes",
			Help:      "Size in bytes of agent state blobs passed to encrypt",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B .. 16MB
		},
	)

	// CatalogModules tracks the total number of modules currently stored,
	// across all scopes.
	CatalogModules = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "modules",
			Help:      "Total number of modules currently stored in the catalog",
		},
	)

	// CatalogOperations tracks Loader catalog store/list/get/delete/set_active calls.
	CatalogOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "operations_total",
			Help:      "Total number of catalog operations",
		},
		[]string{"operation", "result"},
	)
)
