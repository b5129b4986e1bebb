// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/davinto-labs/davinto/lib/atomicfile"
	"github.com/davinto-labs/davinto/lib/sealed"
	"github.com/davinto-labs/davinto/lib/secret"
)

// Credentials is the session material persisted across restarts. The
// access token lives in protected memory; it reaches disk only inside
// the sealed credential file.
type Credentials struct {
	UserID      string
	DeviceID    string
	AccessToken *secret.Buffer
}

// Close releases the access token memory. Idempotent.
func (c *Credentials) Close() error {
	if c != nil && c.AccessToken != nil {
		return c.AccessToken.Close()
	}
	return nil
}

// credentialWire is the CBOR shape inside the sealed file.
type credentialWire struct {
	UserID      string `cbor:"user_id"`
	DeviceID    string `cbor:"device_id"`
	AccessToken string `cbor:"access_token"`
}

const (
	identityFileName   = "identity.key"
	credentialFileName = "credentials.sealed"
)

// CredentialStore persists session credentials under the state
// directory, sealed to a per-machine age keypair. The keypair is
// generated on first open; the private key file never leaves the
// state directory.
type CredentialStore struct {
	dir        string
	privateKey *secret.Buffer
	publicKey  string
}

// OpenCredentialStore creates the state directory if needed and loads
// or generates the machine identity keypair.
func OpenCredentialStore(stateDir string) (*CredentialStore, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("bot: creating state directory: %w", err)
	}

	store := &CredentialStore{dir: stateDir}
	identityPath := filepath.Join(stateDir, identityFileName)

	raw, err := os.ReadFile(identityPath)
	switch {
	case err == nil:
		privateKey, err := secret.NewFromBytes([]byte(strings.TrimSpace(string(raw))))
		if err != nil {
			return nil, fmt.Errorf("bot: protecting identity key: %w", err)
		}
		publicKey, err := sealed.PublicKeyFor(privateKey)
		if err != nil {
			privateKey.Close()
			return nil, fmt.Errorf("bot: reading identity key: %w", err)
		}
		store.privateKey = privateKey
		store.publicKey = publicKey

	case errors.Is(err, fs.ErrNotExist):
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			return nil, fmt.Errorf("bot: generating identity keypair: %w", err)
		}
		if err := atomicfile.Write(identityPath, []byte(keypair.PrivateKey.String()+"\n"), 0o600); err != nil {
			keypair.Close()
			return nil, fmt.Errorf("bot: writing identity key: %w", err)
		}
		store.privateKey = keypair.PrivateKey
		store.publicKey = keypair.PublicKey

	default:
		return nil, fmt.Errorf("bot: reading identity key: %w", err)
	}

	return store, nil
}

// Close releases the identity key memory.
func (s *CredentialStore) Close() error {
	if s.privateKey != nil {
		return s.privateKey.Close()
	}
	return nil
}

// Load reads and unseals the stored credentials. Returns (nil, nil)
// when no credential file exists yet. The caller owns the returned
// Credentials and must Close them.
func (s *CredentialStore) Load() (*Credentials, error) {
	ciphertext, err := os.ReadFile(filepath.Join(s.dir, credentialFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bot: reading credential file: %w", err)
	}

	plaintext, err := sealed.Decrypt(strings.TrimSpace(string(ciphertext)), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("bot: unsealing credentials: %w", err)
	}
	defer plaintext.Close()

	var wire credentialWire
	if err := cbor.Unmarshal(plaintext.Bytes(), &wire); err != nil {
		return nil, fmt.Errorf("bot: decoding credentials: %w", err)
	}
	if wire.UserID == "" || wire.AccessToken == "" {
		return nil, fmt.Errorf("bot: credential file is missing required fields")
	}

	token, err := secret.NewFromBytes([]byte(wire.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("bot: protecting access token: %w", err)
	}
	return &Credentials{
		UserID:      wire.UserID,
		DeviceID:    wire.DeviceID,
		AccessToken: token,
	}, nil
}

// Save seals the credentials to the machine keypair and writes them
// atomically. Callers treat a Save failure as fatal: continuing with
// an unpersisted credential risks requiring re-pairing after a crash.
func (s *CredentialStore) Save(creds *Credentials) error {
	wire := credentialWire{
		UserID:      creds.UserID,
		DeviceID:    creds.DeviceID,
		AccessToken: creds.AccessToken.String(),
	}
	plaintext, err := cbor.Marshal(wire)
	if err != nil {
		return fmt.Errorf("bot: encoding credentials: %w", err)
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Encrypt(plaintext, s.publicKey)
	if err != nil {
		return fmt.Errorf("bot: sealing credentials: %w", err)
	}
	if err := atomicfile.Write(filepath.Join(s.dir, credentialFileName), []byte(ciphertext+"\n"), 0o600); err != nil {
		return fmt.Errorf("bot: writing credential file: %w", err)
	}
	return nil
}

// Remove deletes the sealed credential file. The machine identity is
// kept so a later pairing reuses it. Removing an absent file is a
// no-op.
func (s *CredentialStore) Remove() error {
	err := os.Remove(filepath.Join(s.dir, credentialFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("bot: removing credential file: %w", err)
	}
	return nil
}
