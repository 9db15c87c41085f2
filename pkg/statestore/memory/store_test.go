// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agenthost/pkg/state"
	"github.com/sage-x-project/agenthost/pkg/statestore"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	blob := state.EncryptedBlob{Nonce: []byte("nonce-bytes-"), Ciphertext: []byte("ciphertext")}
	require.NoError(t, s.Save(ctx, "scope-1", "module-a", blob))

	got, err := s.Load(ctx, "scope-1", "module-a")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Load(context.Background(), "scope-1", "missing")
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestDeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	blob := state.EncryptedBlob{Nonce: []byte("n"), Ciphertext: []byte("c")}
	require.NoError(t, s.Save(ctx, "scope-1", "module-a", blob))

	require.NoError(t, s.Delete(ctx, "scope-1", "module-a"))
	_, err := s.Load(ctx, "scope-1", "module-a")
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestDeleteScopeRemovesOnlyThatScope(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	blob := state.EncryptedBlob{Nonce: []byte("n"), Ciphertext: []byte("c")}
	require.NoError(t, s.Save(ctx, "scope-1", "module-a", blob))
	require.NoError(t, s.Save(ctx, "scope-2", "module-a", blob))

	require.NoError(t, s.DeleteScope(ctx, "scope-1"))

	_, err := s.Load(ctx, "scope-1", "module-a")
	assert.ErrorIs(t, err, statestore.ErrNotFound)

	_, err = s.Load(ctx, "scope-2", "module-a")
	assert.NoError(t, err)
}

func TestSaveCopiesBlobDefensively(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	nonce := []byte("nonce-bytes-")
	blob := state.EncryptedBlob{Nonce: nonce, Ciphertext: []byte("ciphertext")}
	require.NoError(t, s.Save(ctx, "scope-1", "module-a", blob))

	nonce[0] = 0xFF

	got, err := s.Load(ctx, "scope-1", "module-a")
	require.NoError(t, err)
	assert.NotEqual(t, byte(0xFF), got.Nonce[0])
}
