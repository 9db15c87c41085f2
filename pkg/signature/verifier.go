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

// Package signature verifies Ed25519 detached signatures over a module's
// content hash and applies the manifest signing policy.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// Verify decodes the base64 public key and signature and checks sig
// against the UTF-8 bytes of contentHashHex. It returns false (never an
// error) on wrong length, decode failure, or verification failure --
// agents and callers alike only ever see a boolean here.
func Verify(contentHashHex, sigB64, pubkeyB64 string) bool {
	pub, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pub), []byte(contentHashHex), sig)
}

// ManifestPolicy applies the module signing policy:
//   - no trusted key configured: always accept
//   - unsigned and signatures required: reject
//   - unsigned and not required: accept
//   - signed: must verify against the trusted key
//
// trustedPubkeyB64 == "" means no trusted key is configured.
func ManifestPolicy(m *manifest.AgentManifest, trustedPubkeyB64 string, requireSigned bool) error {
	if trustedPubkeyB64 == "" {
		return nil
	}

	if m.Signature == "" {
		if requireSigned {
			return manifest.ErrSignatureMissing
		}
		return nil
	}

	if !Verify(m.ContentHash, m.Signature, trustedPubkeyB64) {
		return manifest.ErrSignatureInvalid
	}
	return nil
}
