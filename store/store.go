// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the bot's durable chat state as flat JSON
// documents, one file per domain: user profiles, per-group settings,
// and game scores.
//
// Each domain is a whole-document store: Load returns the entire
// document as a map, Save replaces the file with the given map. There
// is no partial update — concurrent handlers that load, modify, and
// save race with last-writer-wins semantics, which is accepted for
// the low-contention telemetry and settings this bot keeps. Writes
// are atomic (temp file, fsync, rename), so a crash never leaves a
// torn document, and the files stay inspectable with a text editor.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/davinto-labs/davinto/lib/atomicfile"
)

// UserProfile is one user's telemetry record, keyed by user ID.
type UserProfile struct {
	// Name is the display name captured the last time the user was
	// seen.
	Name string `json:"name"`
	// Count is the number of messages seen from this user.
	Count int `json:"count"`
}

// GroupSettings holds per-group feature flags, keyed by chat ID.
type GroupSettings struct {
	NSFW bool `json:"nsfw"`
}

// ScoreBoard maps game name to points for one user.
type ScoreBoard map[string]int

// Domain is one whole-document JSON store. Load and Save move the
// entire document; the zero value of a missing file is an empty map.
// A Domain serializes its own file access, but two handlers that both
// Load, modify, and Save still race at the document level
// (last-writer-wins).
type Domain[Record any] struct {
	mu   sync.Mutex
	path string
}

// NewDomain creates a domain backed by the JSON file at path.
func NewDomain[Record any](path string) *Domain[Record] {
	return &Domain[Record]{path: path}
}

// Load reads the full document. A missing file yields an empty,
// non-nil map.
func (d *Domain[Record]) Load() (map[string]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("store: reading %s: %w", filepath.Base(d.path), err)
	}

	document := map[string]Record{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("store: parsing %s: %w", filepath.Base(d.path), err)
	}
	return document, nil
}

// Save atomically replaces the document on disk. A nil map writes an
// empty document.
func (d *Domain[Record]) Save(document map[string]Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if document == nil {
		document = map[string]Record{}
	}
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", filepath.Base(d.path), err)
	}
	data = append(data, '\n')

	if err := atomicfile.Write(d.path, data, 0600); err != nil {
		return fmt.Errorf("store: writing %s: %w", filepath.Base(d.path), err)
	}
	return nil
}

// Update loads the document, applies modify, and saves the result.
// The read-modify-write runs under the domain lock, so concurrent
// Updates on the same domain do not lose each other's writes.
// Handlers that need cross-domain atomicity don't get it — there is
// none to give with one file per domain.
func (d *Domain[Record]) Update(modify func(document map[string]Record)) error {
	// Load and Save take the lock themselves; this wrapper holds it
	// across both to close the read-modify-write gap within a domain.
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	document := map[string]Record{}
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &document); err != nil {
			return fmt.Errorf("store: parsing %s: %w", filepath.Base(d.path), err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("store: reading %s: %w", filepath.Base(d.path), err)
	}

	modify(document)

	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", filepath.Base(d.path), err)
	}
	encoded = append(encoded, '\n')
	if err := atomicfile.Write(d.path, encoded, 0600); err != nil {
		return fmt.Errorf("store: writing %s: %w", filepath.Base(d.path), err)
	}
	return nil
}

// Store bundles the three domains under one data directory.
type Store struct {
	Profiles *Domain[UserProfile]
	Settings *Domain[GroupSettings]
	Scores   *Domain[ScoreBoard]
}

// Open creates a Store rooted at dataDir, creating the directory if
// needed. Files are profiles.json, settings.json, and scores.json.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: creating data directory: %w", err)
	}
	return &Store{
		Profiles: NewDomain[UserProfile](filepath.Join(dataDir, "profiles.json")),
		Settings: NewDomain[GroupSettings](filepath.Join(dataDir, "settings.json")),
		Scores:   NewDomain[ScoreBoard](filepath.Join(dataDir, "scores.json")),
	}, nil
}
