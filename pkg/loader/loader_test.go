// SPDX-License-Identifier: LGPL-3.0-or-later

package loader_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/sage-x-project/agenthost/internal/wasmgen"
	"github.com/sage-x-project/agenthost/pkg/builtin"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	catalogmem "github.com/sage-x-project/agenthost/pkg/catalog/memory"
	"github.com/sage-x-project/agenthost/pkg/loader"
)

func validModuleBytes() []byte {
	return wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
}

func newTestLoader(t *testing.T) *loader.Loader {
	t.Helper()
	store := catalogmem.NewStore()
	rt := wazero.NewRuntime(context.Background())
	t.Cleanup(func() { rt.Close(context.Background()) })
	return loader.New(store, loader.SigningPolicy{}, rt)
}

func manifestJSON(t *testing.T, hash string) []byte {
	t.Helper()
	m := map[string]any{
		"name":         "test-agent",
		"version":      "1.0.0",
		"description":  "a test agent",
		"author":       "tester",
		"content_hash": hash,
		"permissions":  []string{"read_tasks"},
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestHashStability(t *testing.T) {
	b := validModuleBytes()
	l := newTestLoader(t)
	err := l.ValidateBytes(context.Background(), b, loader.Hash(b))
	assert.NoError(t, err)
}

func TestValidateBytesTooLarge(t *testing.T) {
	l := newTestLoader(t)
	huge := make([]byte, loader.MaxModuleSize+1)
	copy(huge, validModuleBytes())
	err := l.ValidateBytes(context.Background(), huge, loader.Hash(huge))
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindTooLarge, le.Kind)
}

func TestValidateBytesNotWasm(t *testing.T) {
	l := newTestLoader(t)
	b := []byte("not a wasm module")
	err := l.ValidateBytes(context.Background(), b, loader.Hash(b))
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindNotWasm, le.Kind)
}

func TestValidateBytesMissingExport(t *testing.T) {
	l := newTestLoader(t)
	b := wasmgen.Module([]string{"init", "on_tick"}) // missing on_task_event
	err := l.ValidateBytes(context.Background(), b, loader.Hash(b))
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindMissingExport, le.Kind)
}

func TestValidateBytesHashMismatch(t *testing.T) {
	l := newTestLoader(t)
	b := validModuleBytes()
	err := l.ValidateBytes(context.Background(), b, "0000000000000000000000000000000000000000000000000000000000000000")
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindHashMismatch, le.Kind)
}

func TestStoreValidUpload(t *testing.T) {
	l := newTestLoader(t)
	b := validModuleBytes()
	rec, err := l.Store(context.Background(), "scope-1", manifestJSON(t, loader.Hash(b)), b)
	require.NoError(t, err)
	assert.Equal(t, "scope-1:test-agent", rec.ID)
	assert.True(t, rec.Active)
}

func TestStoreTamperedHashRejectedCatalogUnchanged(t *testing.T) {
	l := newTestLoader(t)
	b := validModuleBytes()
	goodHash := loader.Hash(b)
	tampered := []rune(goodHash)
	if tampered[0] == '0' {
		tampered[0] = '1'
	} else {
		tampered[0] = '0'
	}

	_, err := l.Store(context.Background(), "scope-1", manifestJSON(t, string(tampered)), b)
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindHashMismatch, le.Kind)

	list, err := l.List(context.Background(), "scope-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	l := newTestLoader(t)
	_, err := l.Get(context.Background(), "scope-1:missing")
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindNotFound, le.Kind)
}

func TestSetActiveMissingReturnsNotFound(t *testing.T) {
	l := newTestLoader(t)
	err := l.SetActive(context.Background(), "scope-1:missing", false)
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindNotFound, le.Kind)
}

func TestWithBuiltinsMergesIntoListAndGet(t *testing.T) {
	reg := builtin.NewRegistry(builtin.DefaultAssets(), nil)
	l := newTestLoader(t).WithBuiltins(reg)

	list, err := l.List(context.Background(), "scope-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, builtin.IDPrefix+"echo", list[0].ID)

	rec, err := l.Get(context.Background(), builtin.IDPrefix+"echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", rec.Manifest.Name)
}

func TestWithBuiltinsSetActiveDisablesInsteadOfStore(t *testing.T) {
	reg := builtin.NewRegistry(builtin.DefaultAssets(), nil)
	l := newTestLoader(t).WithBuiltins(reg)

	require.NoError(t, l.SetActive(context.Background(), builtin.IDPrefix+"echo", false))

	rec, err := l.Get(context.Background(), builtin.IDPrefix+"echo")
	require.NoError(t, err)
	assert.False(t, rec.Active)
}

func TestWithBuiltinsRejectsDelete(t *testing.T) {
	reg := builtin.NewRegistry(builtin.DefaultAssets(), nil)
	l := newTestLoader(t).WithBuiltins(reg)

	err := l.Delete(context.Background(), builtin.IDPrefix+"echo")
	var le *loader.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, loader.KindBuiltinImmutable, le.Kind)
}

var _ catalog.Store = (*catalogmem.Store)(nil)
