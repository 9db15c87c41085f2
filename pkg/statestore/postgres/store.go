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

// Package postgres implements statestore.Store on PostgreSQL via pgx,
// adapted from the project's generic storage/postgres pattern.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/state"
	"github.com/sage-x-project/agenthost/pkg/statestore"
)

// Store implements statestore.Store backed by an `agent_state` table.
//
//	CREATE TABLE agent_state (
//	  scope_id    TEXT NOT NULL,
//	  module_id   TEXT NOT NULL,
//	  nonce       BYTEA NOT NULL,
//	  ciphertext  BYTEA NOT NULL,
//	  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	  PRIMARY KEY (scope_id, module_id)
//	);
type Store struct {
	db *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, scopeID, moduleID string, blob state.EncryptedBlob) error {
	query := `
		INSERT INTO agent_state (scope_id, module_id, nonce, ciphertext, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (scope_id, module_id) DO UPDATE SET
			nonce = EXCLUDED.nonce,
			ciphertext = EXCLUDED.ciphertext,
			updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, scopeID, moduleID, blob.Nonce, blob.Ciphertext); err != nil {
		metrics.StateOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save state: %w", err)
	}
	metrics.StateOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *Store) Load(ctx context.Context, scopeID, moduleID string) (state.EncryptedBlob, error) {
	query := `SELECT nonce, ciphertext FROM agent_state WHERE scope_id = $1 AND module_id = $2`

	var blob state.EncryptedBlob
	err := s.db.QueryRow(ctx, query, scopeID, moduleID).Scan(&blob.Nonce, &blob.Ciphertext)
	if err == pgx.ErrNoRows {
		metrics.StateOperations.WithLabelValues("load", "not_found").Inc()
		return state.EncryptedBlob{}, statestore.ErrNotFound
	}
	if err != nil {
		metrics.StateOperations.WithLabelValues("load", "error").Inc()
		return state.EncryptedBlob{}, fmt.Errorf("load state: %w", err)
	}
	metrics.StateOperations.WithLabelValues("load", "ok").Inc()
	return blob, nil
}

func (s *Store) Delete(ctx context.Context, scopeID, moduleID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM agent_state WHERE scope_id = $1 AND module_id = $2`, scopeID, moduleID)
	if err != nil {
		metrics.StateOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete state: %w", err)
	}
	if result.RowsAffected() == 0 {
		metrics.StateOperations.WithLabelValues("delete", "not_found").Inc()
		return statestore.ErrNotFound
	}
	metrics.StateOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, scopeID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM agent_state WHERE scope_id = $1`, scopeID); err != nil {
		metrics.StateOperations.WithLabelValues("delete_scope", "error").Inc()
		return fmt.Errorf("delete scope state: %w", err)
	}
	metrics.StateOperations.WithLabelValues("delete_scope", "ok").Inc()
	return nil
}
