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

// Package memory implements catalog.Store in-process, adapted from the
// project's generic storage/memory record shape: a mutex-guarded map with
// defensive copies in and out.
package memory

import (
	"context"
	"sync"

	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// Store is an in-memory catalog.Store, primarily for tests and
// single-process deployments.
type Store struct {
	mu      sync.RWMutex
	records map[string]*catalog.StoredModule
}

// NewStore creates an empty in-memory catalog store.
func NewStore() *Store {
	return &Store{records: make(map[string]*catalog.StoredModule)}
}

func (s *Store) Store(ctx context.Context, m *catalog.StoredModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyModule(m)
	s.records[cp.ID] = cp
	metrics.CatalogOperations.WithLabelValues("store", "ok").Inc()
	metrics.CatalogModules.Set(float64(len(s.records)))
	return nil
}

func (s *Store) List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*catalog.StoredModule
	for _, m := range s.records {
		if m.ScopeID == scopeID {
			out = append(out, copyModule(m))
		}
	}
	metrics.CatalogOperations.WithLabelValues("list", "ok").Inc()
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*catalog.StoredModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.records[id]
	if !ok {
		metrics.CatalogOperations.WithLabelValues("get", "not_found").Inc()
		return nil, catalog.ErrNotFound
	}
	metrics.CatalogOperations.WithLabelValues("get", "ok").Inc()
	return copyModule(m), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		metrics.CatalogOperations.WithLabelValues("delete", "not_found").Inc()
		return catalog.ErrNotFound
	}
	delete(s.records, id)
	metrics.CatalogOperations.WithLabelValues("delete", "ok").Inc()
	metrics.CatalogModules.Set(float64(len(s.records)))
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		metrics.CatalogOperations.WithLabelValues("set_active", "not_found").Inc()
		return catalog.ErrNotFound
	}
	m.Active = active
	metrics.CatalogOperations.WithLabelValues("set_active", "ok").Inc()
	return nil
}

func copyModule(m *catalog.StoredModule) *catalog.StoredModule {
	cp := *m
	if m.Bytes != nil {
		cp.Bytes = make([]byte, len(m.Bytes))
		copy(cp.Bytes, m.Bytes)
	}
	if m.Manifest != nil {
		mm := *m.Manifest
		mm.Permissions = append([]manifest.Permission(nil), m.Manifest.Permissions...)
		cp.Manifest = &mm
	}
	return &cp
}
