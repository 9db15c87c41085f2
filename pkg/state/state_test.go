// SPDX-License-Identifier: LGPL-3.0-or-later

package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStateKeyReproducible(t *testing.T) {
	seed := []byte("0123456789abcdef")

	k1, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)
	k2, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestDeriveStateKeyIsolation(t *testing.T) {
	seed := []byte("0123456789abcdef")

	a, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)
	b, err := DeriveStateKey(seed, "module-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeriveStateKeyShortSeedRejected(t *testing.T) {
	_, err := DeriveStateKey([]byte("short"), "module-a")
	assert.ErrorIs(t, err, ErrShortSeed)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	seed := []byte("0123456789abcdef")
	key, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)

	plaintext := []byte(`{"counter": 42}`)
	blob, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, blob.Nonce)
	assert.False(t, bytes.Contains(blob.Ciphertext, plaintext))

	got, err := Decrypt(key, blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptTooLarge(t *testing.T) {
	seed := []byte("0123456789abcdef")
	key, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)

	huge := make([]byte, MaxStateSize+1)
	_, err = Encrypt(key, huge)
	assert.ErrorIs(t, err, ErrStateTooLarge)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	seed := []byte("0123456789abcdef")
	key, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("hello"))
	require.NoError(t, err)

	blob.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(key, blob)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	seed := []byte("0123456789abcdef")
	keyA, err := DeriveStateKey(seed, "module-a")
	require.NoError(t, err)
	keyB, err := DeriveStateKey(seed, "module-b")
	require.NoError(t, err)

	blob, err := Encrypt(keyA, []byte("hello"))
	require.NoError(t, err)

	_, err = Decrypt(keyB, blob)
	assert.ErrorIs(t, err, ErrTampered)
}
