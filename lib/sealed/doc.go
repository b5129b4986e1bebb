// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for the bot's stored
// credential. It wraps filippo.io/age for the operations the session
// manager needs: generate an x25519 machine keypair, seal the
// credential payload to it, and open the sealed payload on startup.
//
// Ciphertext is base64-encoded so the credential file stays plain
// text. Callers pass plaintext []byte to [Encrypt] and receive a
// base64 string; [Decrypt] accepts a base64 string and returns the
// plaintext in a [secret.Buffer] backed by mmap memory outside the Go
// heap (locked against swap, excluded from core dumps, zeroed on
// Close), as is the generated private key.
//
// Depends on lib/secret for protected memory.
package sealed
