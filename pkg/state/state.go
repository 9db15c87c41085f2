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

// Package state derives per-module AES-256-GCM keys via HKDF-SHA256 and
// performs authenticated encryption/decryption of worker-emitted state
// blobs. Adapted from the project's file-vault sealing scheme,
// which derives a key (there via PBKDF2 from a passphrase, here via HKDF
// from a host seed) and seals with AES-256-GCM; the seal/open shape is
// kept, the derivation swapped for HKDF over a host-provided seed.
package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sage-x-project/agenthost/internal/metrics"
)

// MaxStateSize bounds plaintext state. encrypt fails above it;
// host_set_state silently drops above it instead.
const MaxStateSize = 1 << 20 // 1 MiB

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const (
	hkdfSalt = "agent-state-v1"
	hkdfInfo = "agent-state:"
)

// Errors returned by encrypt/decrypt. Callers need not distinguish a
// forged ciphertext from one sealed under the wrong key; both surface
// as ErrTampered since AES-GCM tag verification cannot tell them apart.
var (
	ErrStateTooLarge = errors.New("state: plaintext exceeds MAX_STATE_SIZE")
	ErrTampered      = errors.New("state: authentication failed")
	ErrShortSeed     = errors.New("state: seed must be at least 16 bytes")
)

// Key is a derived 256-bit AES-GCM key.
type Key [KeySize]byte

// EncryptedBlob is a sealed state value: a random 96-bit nonce plus the
// AES-GCM output (ciphertext || tag). Never holds plaintext.
type EncryptedBlob struct {
	Nonce      []byte
	Ciphertext []byte
}

// DeriveStateKey derives the per-(seed, module) AES-256 key via
// HKDF-SHA256. Different moduleID values yield independent keys from the
// same seed (agent isolation); the same (seed, moduleID) pair always
// yields the same key (reproducibility across restarts).
func DeriveStateKey(seed []byte, moduleID string) (Key, error) {
	var key Key
	if len(seed) < 16 {
		return key, ErrShortSeed
	}

	r := hkdf.New(sha256.New, seed, []byte(hkdfSalt), []byte(hkdfInfo+moduleID))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("derive state key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random nonce. Fails
// with ErrStateTooLarge if plaintext exceeds MaxStateSize.
func Encrypt(key Key, plaintext []byte) (EncryptedBlob, error) {
	if len(plaintext) > MaxStateSize {
		metrics.StateOperations.WithLabelValues("encrypt", "too_large").Inc()
		return EncryptedBlob{}, ErrStateTooLarge
	}

	gcm, err := newGCM(key)
	if err != nil {
		return EncryptedBlob{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedBlob{}, fmt.Errorf("generate nonce: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plaintext, nil)
	metrics.StateOperations.WithLabelValues("encrypt", "ok").Inc()
	metrics.StateBlobSize.Observe(float64(len(ct)))
	return EncryptedBlob{Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt opens blob under key. Any authentication failure -- a forged
// blob, a truncated one, or one sealed under a different key -- returns
// ErrTampered; the invariant is that a successful Decrypt always yields
// bytes a prior Encrypt(key, ·) produced.
func Decrypt(key Key, blob EncryptedBlob) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob.Nonce) != gcm.NonceSize() {
		metrics.StateOperations.WithLabelValues("decrypt", "tampered").Inc()
		return nil, ErrTampered
	}

	pt, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		metrics.StateOperations.WithLabelValues("decrypt", "tampered").Inc()
		return nil, ErrTampered
	}
	metrics.StateOperations.WithLabelValues("decrypt", "ok").Inc()
	return pt, nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
