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

// Package manifest defines the AgentManifest wire format, the closed
// permission set gating host imports, and the errors the loader and
// signature policy surface to callers.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Permission is a capability name declared in a manifest that gates a
// set of host imports. The set is closed: any value outside it fails
// manifest validation.
type Permission string

const (
	PermissionReadTasks    Permission = "read_tasks"
	PermissionReadMembers  Permission = "read_members"
	PermissionEmitEvents   Permission = "emit_events"
	PermissionPersistState Permission = "persist_state"
)

var allPermissions = map[Permission]struct{}{
	PermissionReadTasks:    {},
	PermissionReadMembers:  {},
	PermissionEmitEvents:   {},
	PermissionPersistState: {},
}

// ValidPermission reports whether p is one of the closed permission set.
func ValidPermission(p Permission) bool {
	_, ok := allPermissions[p]
	return ok
}

// AgentManifest is the metadata accompanying a module. Unknown JSON
// fields are preserved by
// round-tripping through json.RawMessage in callers that need it, but
// are ignored here for validation purposes.
type AgentManifest struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	ContentHash string       `json:"content_hash"`
	Permissions []Permission `json:"permissions"`
	Signature   string       `json:"signature,omitempty"`
}

// HasPermission reports whether the manifest declares p.
func (m *AgentManifest) HasPermission(p Permission) bool {
	for _, have := range m.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Errors surfaced by manifest validation and the loader's signing
// policy. Agents never observe these; only the embedder does.
var (
	ErrManifestInvalid  = errors.New("manifest invalid")
	ErrSignatureMissing = errors.New("manifest requires a signature but none was provided")
	ErrSignatureInvalid = errors.New("manifest signature does not verify against the trusted key")
)

// ValidationError wraps ErrManifestInvalid with the specific field that
// failed, so callers get an actionable message without needing to parse
// strings.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest invalid: field %q: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrManifestInvalid
}

// Validate checks presence and type of required fields and that
// Permissions is a subset of the closed permission set. It does not
// touch ContentHash against the module bytes -- that is Loader's job
// (hash and validate_bytes operate on the bytes, not the manifest
// alone).
func Validate(raw []byte) (*AgentManifest, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Field: "<root>", Msg: "not a JSON object"}
	}

	m := &AgentManifest{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, &ValidationError{Field: "<root>", Msg: err.Error()}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", m.Name},
		{"version", m.Version},
		{"content_hash", m.ContentHash},
	} {
		if field.value == "" {
			return nil, &ValidationError{Field: field.name, Msg: "required and must be a non-empty string"}
		}
	}

	if _, ok := doc["signature"]; ok {
		var sig json.RawMessage
		sig = doc["signature"]
		var s string
		if err := json.Unmarshal(sig, &s); err != nil {
			return nil, &ValidationError{Field: "signature", Msg: "must be a string"}
		}
	}

	seen := make(map[Permission]struct{}, len(m.Permissions))
	for _, p := range m.Permissions {
		if !ValidPermission(p) {
			return nil, &ValidationError{Field: "permissions", Msg: fmt.Sprintf("unknown permission %q", p)}
		}
		seen[p] = struct{}{}
	}

	return m, nil
}
