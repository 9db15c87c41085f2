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

// Package memory implements statestore.Store in-process.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/state"
	"github.com/sage-x-project/agenthost/pkg/statestore"
)

// Store is an in-memory statestore.Store, primarily for tests and
// single-process deployments.
type Store struct {
	mu      sync.RWMutex
	records map[string]state.EncryptedBlob
}

// NewStore creates an empty in-memory state store.
func NewStore() *Store {
	return &Store{records: make(map[string]state.EncryptedBlob)}
}

func (s *Store) Save(ctx context.Context, scopeID, moduleID string, blob state.EncryptedBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := append([]byte(nil), blob.Nonce...)
	ct := append([]byte(nil), blob.Ciphertext...)
	s.records[statestore.Key(scopeID, moduleID)] = state.EncryptedBlob{Nonce: nonce, Ciphertext: ct}
	metrics.StateOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *Store) Load(ctx context.Context, scopeID, moduleID string) (state.EncryptedBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.records[statestore.Key(scopeID, moduleID)]
	if !ok {
		metrics.StateOperations.WithLabelValues("load", "not_found").Inc()
		return state.EncryptedBlob{}, statestore.ErrNotFound
	}
	metrics.StateOperations.WithLabelValues("load", "ok").Inc()
	return state.EncryptedBlob{
		Nonce:      append([]byte(nil), blob.Nonce...),
		Ciphertext: append([]byte(nil), blob.Ciphertext...),
	}, nil
}

func (s *Store) Delete(ctx context.Context, scopeID, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statestore.Key(scopeID, moduleID)
	if _, ok := s.records[key]; !ok {
		metrics.StateOperations.WithLabelValues("delete", "not_found").Inc()
		return statestore.ErrNotFound
	}
	delete(s.records, key)
	metrics.StateOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *Store) DeleteScope(ctx context.Context, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := scopeID + ":"
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			delete(s.records, key)
		}
	}
	metrics.StateOperations.WithLabelValues("delete_scope", "ok").Inc()
	return nil
}
