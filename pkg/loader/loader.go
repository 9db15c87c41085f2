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

// Package loader validates manifests and module bytes and persists the
// result into a catalog.Store. Export inspection is grounded on the
// wazero HostModuleBuilder/CompileModule pattern used by the gossamer
// runtime instance in the retrieval pack's other_examples: compile
// first and inspect the resulting CompiledModule's exports here; only
// pkg/worker instantiates a module, when it has to run real code.
package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"

	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/manifest"
	"github.com/sage-x-project/agenthost/pkg/signature"
)

// builtinRegistry is the subset of *builtin.Registry the loader merges
// into its catalog view. Declared here rather than imported directly so
// loader does not have to depend on builtin's wasmgen/manifest asset
// loading machinery, only on the records it already produced.
type builtinRegistry interface {
	List(ctx context.Context, scopeID string) []*catalog.StoredModule
	Get(ctx context.Context, scopeID, id string) (*catalog.StoredModule, error)
	SetEnabled(ctx context.Context, scopeID, id string, enabled bool) error
}

// MaxModuleSize bounds uploaded module bytes.
const MaxModuleSize = 500 * 1024 // 500 KiB

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// RequiredExports lists the function exports every module must provide.
// A linear memory export is required too but has no fixed name; any
// exported memory satisfies it.
var RequiredExports = []string{"init", "on_task_event", "on_tick"}

// Error is a structured LoaderError: a Kind plus the underlying cause.
// Agents never see these; only the embedder does.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("loader: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Error kinds, covering the module-bytes-invalid variants plus the
// manifest/signature failures surfaced at upload time.
const (
	KindManifestInvalid   = "ManifestInvalid"
	KindTooLarge          = "TooLarge"
	KindNotWasm           = "NotWasm"
	KindMissingExport     = "MissingExport"
	KindHashMismatch      = "HashMismatch"
	KindSignatureMissing  = "SignatureMissing"
	KindSignatureInvalid  = "SignatureInvalid"
	KindNotFound          = "NotFound"
	KindBuiltinImmutable  = "BuiltinImmutable"
)

// SigningPolicy configures whether uploads require a verifying signature.
type SigningPolicy struct {
	TrustedPubkeyB64 string
	RequireSigned    bool
}

// Loader validates and persists module uploads through a catalog.Store.
type Loader struct {
	store    catalog.Store
	policy   SigningPolicy
	runtime  wazero.Runtime
	builtins builtinRegistry
}

// New builds a Loader backed by store, applying policy to every upload.
// runtime is used only to compile candidate bytes for export inspection;
// it is never used to instantiate them (that is pkg/worker's job).
func New(store catalog.Store, policy SigningPolicy, runtime wazero.Runtime) *Loader {
	return &Loader{store: store, policy: policy, runtime: runtime}
}

// WithBuiltins attaches a built-in registry: List and Get then merge its
// records into the scope's view, and Delete/SetActive route requests for
// a built-in id to it instead of the catalog store.
func (l *Loader) WithBuiltins(b builtinRegistry) *Loader {
	l.builtins = b
	return l
}

// ValidateManifest checks presence/type of required fields and the
// closed permission set, wrapping manifest.Validate's error as a
// structured Loader error.
func ValidateManifest(raw []byte) (*manifest.AgentManifest, error) {
	m, err := manifest.Validate(raw)
	if err != nil {
		return nil, &Error{Kind: KindManifestInvalid, Err: err}
	}
	return m, nil
}

// Hash returns the lowercase hex SHA-256 digest of bytes.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ValidateBytes checks size, wasm magic/version, required exports, and
// that hash(bytes) matches expectedHash.
func (l *Loader) ValidateBytes(ctx context.Context, moduleBytes []byte, expectedHash string) error {
	if len(moduleBytes) > MaxModuleSize {
		return &Error{Kind: KindTooLarge, Err: fmt.Errorf("module is %d bytes, max %d", len(moduleBytes), MaxModuleSize)}
	}
	if len(moduleBytes) < len(wasmMagic) || !bytes.Equal(moduleBytes[:len(wasmMagic)], wasmMagic) {
		return &Error{Kind: KindNotWasm, Err: errors.New("missing or invalid wasm magic/version header")}
	}

	compiled, err := l.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return &Error{Kind: KindNotWasm, Err: err}
	}
	defer compiled.Close(ctx)

	fns := compiled.ExportedFunctions()
	for _, name := range RequiredExports {
		if _, ok := fns[name]; !ok {
			return &Error{Kind: KindMissingExport, Err: fmt.Errorf("missing required export %q", name)}
		}
	}
	if len(compiled.ExportedMemories()) == 0 {
		return &Error{Kind: KindMissingExport, Err: errors.New("module exports no linear memory")}
	}

	if actual := Hash(moduleBytes); actual != expectedHash {
		return &Error{Kind: KindHashMismatch, Err: fmt.Errorf("expected %s, got %s", expectedHash, actual)}
	}
	return nil
}

// Store validates manifest and bytes, applies the signing policy, and
// persists a StoredModule keyed by scope:manifest.Name. On success it
// returns the freshly materialised record.
func (l *Loader) Store(ctx context.Context, scopeID string, manifestRaw, moduleBytes []byte) (*catalog.StoredModule, error) {
	m, err := ValidateManifest(manifestRaw)
	if err != nil {
		return nil, err
	}

	if err := l.ValidateBytes(ctx, moduleBytes, m.ContentHash); err != nil {
		return nil, err
	}

	if err := signature.ManifestPolicy(m, l.policy.TrustedPubkeyB64, l.policy.RequireSigned); err != nil {
		if errors.Is(err, manifest.ErrSignatureMissing) {
			return nil, &Error{Kind: KindSignatureMissing, Err: err}
		}
		return nil, &Error{Kind: KindSignatureInvalid, Err: err}
	}

	rec := &catalog.StoredModule{
		ID:       catalog.ID(scopeID, m.Name),
		ScopeID:  scopeID,
		Manifest: m,
		Bytes:    moduleBytes,
		Active:   true,
	}
	if err := l.store.Store(ctx, rec); err != nil {
		return nil, fmt.Errorf("loader: persist module: %w", err)
	}
	return rec, nil
}

// List returns every record for scope, built-ins included when a
// registry is attached via WithBuiltins.
func (l *Loader) List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error) {
	recs, err := l.store.List(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if l.builtins != nil {
		recs = append(recs, l.builtins.List(ctx, scopeID)...)
	}
	return recs, nil
}

// Get returns the record with the given catalog id, checking the
// attached built-in registry (if any) before the catalog store.
func (l *Loader) Get(ctx context.Context, id string) (*catalog.StoredModule, error) {
	if l.builtins != nil {
		if rec, err := l.builtins.Get(ctx, "", id); err == nil {
			return rec, nil
		}
	}
	rec, err := l.store.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Err: err}
	}
	return rec, err
}

// Delete removes the record with the given catalog id. Built-ins are
// never deleted; use SetActive to disable one for a scope instead.
func (l *Loader) Delete(ctx context.Context, id string) error {
	if l.builtins != nil {
		if _, err := l.builtins.Get(ctx, "", id); err == nil {
			return &Error{Kind: KindBuiltinImmutable, Err: errors.New("built-in modules cannot be deleted, only disabled")}
		}
	}
	if err := l.store.Delete(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return &Error{Kind: KindNotFound, Err: err}
		}
		return err
	}
	return nil
}

// SetActive flips the active flag on the record with the given id. A
// built-in id flips its enablement in the attached registry instead of
// the catalog store; admin API callers don't yet plumb a scope into
// this path, so built-in enablement toggles globally (scope "").
func (l *Loader) SetActive(ctx context.Context, id string, active bool) error {
	if l.builtins != nil {
		if _, err := l.builtins.Get(ctx, "", id); err == nil {
			return l.builtins.SetEnabled(ctx, "", id, active)
		}
	}
	if err := l.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return &Error{Kind: KindNotFound, Err: err}
		}
		return err
	}
	return nil
}
