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

// Package postgres implements catalog.Store on PostgreSQL via pgx,
// adapted from the project's generic storage/postgres record-store pattern.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// Store implements catalog.Store backed by a `modules` table.
//
//	CREATE TABLE modules (
//	  id           TEXT PRIMARY KEY,
//	  scope_id     TEXT NOT NULL,
//	  manifest     JSONB NOT NULL,
//	  bytes        BYTEA NOT NULL,
//	  uploaded_at  TIMESTAMPTZ NOT NULL,
//	  active       BOOLEAN NOT NULL DEFAULT true
//	);
//	CREATE INDEX modules_scope_id_idx ON modules (scope_id);
type Store struct {
	db *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Store(ctx context.Context, m *catalog.StoredModule) error {
	manifestJSON, err := json.Marshal(m.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	query := `
		INSERT INTO modules (id, scope_id, manifest, bytes, uploaded_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			manifest = EXCLUDED.manifest,
			bytes = EXCLUDED.bytes,
			uploaded_at = EXCLUDED.uploaded_at,
			active = EXCLUDED.active
	`
	if _, err := s.db.Exec(ctx, query, m.ID, m.ScopeID, manifestJSON, m.Bytes, m.UploadedAt, m.Active); err != nil {
		metrics.CatalogOperations.WithLabelValues("store", "error").Inc()
		return fmt.Errorf("store module: %w", err)
	}
	metrics.CatalogOperations.WithLabelValues("store", "ok").Inc()
	return nil
}

func (s *Store) List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error) {
	query := `SELECT id, scope_id, manifest, bytes, uploaded_at, active FROM modules WHERE scope_id = $1`

	rows, err := s.db.Query(ctx, query, scopeID)
	if err != nil {
		metrics.CatalogOperations.WithLabelValues("list", "error").Inc()
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var out []*catalog.StoredModule
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	metrics.CatalogOperations.WithLabelValues("list", "ok").Inc()
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*catalog.StoredModule, error) {
	query := `SELECT id, scope_id, manifest, bytes, uploaded_at, active FROM modules WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	m, err := scanModule(row)
	if err == pgx.ErrNoRows {
		metrics.CatalogOperations.WithLabelValues("get", "not_found").Inc()
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		metrics.CatalogOperations.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	metrics.CatalogOperations.WithLabelValues("get", "ok").Inc()
	return m, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		metrics.CatalogOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete module: %w", err)
	}
	if result.RowsAffected() == 0 {
		metrics.CatalogOperations.WithLabelValues("delete", "not_found").Inc()
		return catalog.ErrNotFound
	}
	metrics.CatalogOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.Exec(ctx, `UPDATE modules SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		metrics.CatalogOperations.WithLabelValues("set_active", "error").Inc()
		return fmt.Errorf("set module active: %w", err)
	}
	if result.RowsAffected() == 0 {
		metrics.CatalogOperations.WithLabelValues("set_active", "not_found").Inc()
		return catalog.ErrNotFound
	}
	metrics.CatalogOperations.WithLabelValues("set_active", "ok").Inc()
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanModule(row rowScanner) (*catalog.StoredModule, error) {
	var m catalog.StoredModule
	var manifestJSON []byte

	if err := row.Scan(&m.ID, &m.ScopeID, &manifestJSON, &m.Bytes, &m.UploadedAt, &m.Active); err != nil {
		return nil, err
	}

	var mm manifest.AgentManifest
	if err := json.Unmarshal(manifestJSON, &mm); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	m.Manifest = &mm
	return &m, nil
}
