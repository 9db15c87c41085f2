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

// Package catalog defines StoredModule and the catalog store interface
// the Loader persists records through. Adapted from the project's
// pkg/storage DID/session catalog layer: same keyed-record, Create
// /Get/List/Delete shape, repointed at modules instead of DIDs.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// ErrNotFound is returned by Get/SetActive when no record matches.
// Catalog operations never panic; absence is always a value.
var ErrNotFound = errors.New("catalog: not found")

// ErrAlreadyExists reports that (scope, name) is taken. Neither bundled
// Store implementation returns it: both replace an existing record.
var ErrAlreadyExists = errors.New("catalog: module already exists")

// StoredModule is a catalog entry keyed by (scope_id, module_name).
type StoredModule struct {
	ID         string                    `json:"id"` // scope_id + ":" + module_name
	ScopeID    string                    `json:"scope_id"`
	Manifest   *manifest.AgentManifest   `json:"manifest"`
	Bytes      []byte                    `json:"bytes"`
	UploadedAt time.Time                 `json:"uploaded_at"`
	Active     bool                      `json:"active"`
}

// ID builds the canonical "scope:name" catalog key.
func ID(scopeID, moduleName string) string {
	return scopeID + ":" + moduleName
}

// Store is the persisted catalog of StoredModule records. Implementations
// (memory, postgres) only need a single logical key per record; any
// ordered K/V backing is acceptable.
type Store interface {
	// Store inserts or replaces the record for (scope, manifest.Name).
	Store(ctx context.Context, m *StoredModule) error
	// List returns every persisted record for scope. Built-ins are not
	// stored here; pkg/loader.Loader.List merges them in separately from
	// its attached pkg/builtin.Registry.
	List(ctx context.Context, scopeID string) ([]*StoredModule, error)
	// Get returns the record with the given catalog id.
	Get(ctx context.Context, id string) (*StoredModule, error)
	// Delete removes the record with the given catalog id.
	Delete(ctx context.Context, id string) error
	// SetActive flips the active flag. Returns ErrNotFound if id is missing.
	SetActive(ctx context.Context, id string, active bool) error
}
