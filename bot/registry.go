// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateCommand is returned by Register when a command name (or
// one of its aliases) is already taken.
var ErrDuplicateCommand = errors.New("bot: duplicate command")

// Handler executes one command invocation. Replies go through the
// gateway; a returned error produces a single generic failure reply
// and a log entry, never a crash.
type Handler func(ctx context.Context, gw *Gateway, inv Invocation) error

// Descriptor declares a command: its primary name, optional aliases,
// the menu description, the gates that guard it, and the handler.
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string

	// Hidden commands are dispatchable but omitted from the menu.
	Hidden bool

	OwnerOnly    bool
	GroupOnly    bool
	RequiresNSFW bool

	// OwnerDenial overrides the default owner-gate rejection text.
	OwnerDenial string

	Run Handler
}

// Registry maps command names to descriptors. Registration happens at
// startup; Freeze is called before dispatch begins, after which the
// registry is read-only and safe for concurrent Resolve calls.
type Registry struct {
	mu       sync.Mutex
	frozen   bool
	byName   map[string]*Descriptor
	ordered  []*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a command. Names are matched case-insensitively, so
// registration lowercases them. Registering after Freeze panics:
// that is a wiring bug, not a runtime condition.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return errors.New("bot: command name is required")
	}
	if desc.Run == nil {
		return fmt.Errorf("bot: command %q has no handler", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("bot: Register called after Freeze")
	}

	names := append([]string{desc.Name}, desc.Aliases...)
	for _, name := range names {
		if _, taken := r.byName[strings.ToLower(name)]; taken {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, name)
		}
	}

	d := desc
	for _, name := range names {
		r.byName[strings.ToLower(name)] = &d
	}
	r.ordered = append(r.ordered, &d)
	return nil
}

// Freeze marks the registry read-only and sorts the menu ordering.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})
}

// Resolve looks up a command by name or alias, case-insensitively.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// Visible returns the non-hidden descriptors in name order, for the
// menu command.
func (r *Registry) Visible() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	visible := make([]*Descriptor, 0, len(r.ordered))
	for _, d := range r.ordered {
		if !d.Hidden {
			visible = append(visible, d)
		}
	}
	return visible
}
