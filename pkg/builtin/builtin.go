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

// Package builtin loads the fixed set of pre-bundled (manifest, bytes)
// pairs the host ships with, and tracks their per-scope enablement
// outside the catalog so the catalog stays immutable for built-ins.
// Grounded on the project's in-memory map storage shape, repointed
// at a static registry instead of a mutable store.
package builtin

import (
	"context"
	"sync"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/internal/wasmgen"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/loader"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// IDPrefix marks a catalog id as built-in; the admin UI and delete path
// gate on this prefix.
const IDPrefix = "builtin:"

// Asset is a single pre-bundled (manifest, bytes) pair plus the loader
// function that produces it. Asset-loading failures are partial: one
// broken asset must not block the rest of the registry from loading.
type Asset struct {
	Name string
	Load func() (*manifest.AgentManifest, []byte, error)
}

// Registry serves the loaded built-in set and the per-scope disabled
// set. It holds no catalog records; StoredModule views are synthesized
// on demand by List.
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]*catalog.StoredModule // id -> record, ScopeID == ""
	disabled map[string]map[string]struct{}   // scopeID -> set of disabled ids
	log      logger.Logger
}

// DefaultAssets returns the built-in set shipped with the host: a
// no-op "echo" agent useful for smoke-testing activation end to end.
func DefaultAssets() []Asset {
	return []Asset{
		{
			Name: "echo",
			Load: func() (*manifest.AgentManifest, []byte, error) {
				b := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
				m := &manifest.AgentManifest{
					Name:        "echo",
					Version:     "1.0.0",
					Description: "built-in no-op agent used to smoke-test activation",
					Author:      "agenthost",
					ContentHash: loader.Hash(b),
					Permissions: []manifest.Permission{manifest.PermissionReadTasks, manifest.PermissionEmitEvents},
				}
				return m, b, nil
			},
		},
	}
}

// NewRegistry loads every asset in assets, logging and skipping any that
// fail rather than aborting the whole set.
func NewRegistry(assets []Asset, log logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	r := &Registry{
		modules:  make(map[string]*catalog.StoredModule),
		disabled: make(map[string]map[string]struct{}),
		log:      log,
	}

	for _, asset := range assets {
		m, bytes, err := asset.Load()
		if err != nil {
			r.log.Warn("builtin asset failed to load, skipping", logger.String("name", asset.Name), logger.Error(err))
			continue
		}
		id := IDPrefix + asset.Name
		r.modules[id] = &catalog.StoredModule{
			ID:       id,
			ScopeID:  "",
			Manifest: m,
			Bytes:    bytes,
			Active:   true,
		}
	}
	return r
}

// List returns every built-in, each annotated with whether scopeID has
// disabled it.
func (r *Registry) List(ctx context.Context, scopeID string) []*catalog.StoredModule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*catalog.StoredModule, 0, len(r.modules))
	disabled := r.disabled[scopeID]
	for _, m := range r.modules {
		cp := *m
		cp.ScopeID = scopeID
		if _, off := disabled[m.ID]; off {
			cp.Active = false
		}
		out = append(out, &cp)
	}
	return out
}

// Get returns the built-in record with the given id, annotated for scopeID.
func (r *Registry) Get(ctx context.Context, scopeID, id string) (*catalog.StoredModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *m
	cp.ScopeID = scopeID
	if _, off := r.disabled[scopeID][id]; off {
		cp.Active = false
	}
	return &cp, nil
}

// SetEnabled flips a built-in's enablement for scopeID, without
// touching the catalog. Returns catalog.ErrNotFound for an unknown id.
func (r *Registry) SetEnabled(ctx context.Context, scopeID, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[id]; !ok {
		return catalog.ErrNotFound
	}

	set, ok := r.disabled[scopeID]
	if !ok {
		set = make(map[string]struct{})
		r.disabled[scopeID] = set
	}
	if enabled {
		delete(set, id)
	} else {
		set[id] = struct{}{}
	}
	return nil
}

// IsBuiltin reports whether id carries the built-in id prefix.
func IsBuiltin(id string) bool {
	return len(id) >= len(IDPrefix) && id[:len(IDPrefix)] == IDPrefix
}
