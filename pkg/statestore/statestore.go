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

// Package statestore defines the persisted key-value store of
// EncryptedBlob values StateEngine reads and writes through, keyed by
// (scope_id, module_id). Adapted from the project's storage
// interface shape, repointed at ciphertext instead of DID documents.
package statestore

import (
	"context"
	"errors"

	"github.com/sage-x-project/agenthost/pkg/state"
)

// ErrNotFound is returned by Load when no blob exists for (scope, module).
// Absence of prior state is not an error condition for activation; the
// caller (StateEngine / Executor) treats it as "start fresh".
var ErrNotFound = errors.New("statestore: not found")

// Store persists EncryptedBlob values. A successful Save must be visible
// to a subsequent Load without external synchronization; durability
// across crashes between write and flush is the backing implementation's
// responsibility, not this interface's.
type Store interface {
	Save(ctx context.Context, scopeID, moduleID string, blob state.EncryptedBlob) error
	Load(ctx context.Context, scopeID, moduleID string) (state.EncryptedBlob, error)
	Delete(ctx context.Context, scopeID, moduleID string) error
	DeleteScope(ctx context.Context, scopeID string) error
}

// Key builds the canonical "scope:module" state store key.
func Key(scopeID, moduleID string) string {
	return scopeID + ":" + moduleID
}
