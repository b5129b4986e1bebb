// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/davinto-labs/davinto/lib/secret"
)

// terminalPrompter collects pairing secrets from the controlling
// terminal. It is only consulted on first boot, before credentials
// are sealed to disk; a non-interactive stdin is an error rather
// than a hang.
type terminalPrompter struct{}

func (p *terminalPrompter) Password(ctx context.Context) (*secret.Buffer, error) {
	return p.readSecret(ctx, "Password: ")
}

func (p *terminalPrompter) PairingToken(ctx context.Context) (*secret.Buffer, error) {
	return p.readSecret(ctx, "Pairing token: ")
}

// readSecret prompts on stderr and reads with echo disabled. The
// read itself cannot be interrupted by the context, so cancellation
// is checked before and after.
func (p *terminalPrompter) readSecret(ctx context.Context, prompt string) (*secret.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for pairing prompt %q", strings.TrimSuffix(prompt, ": "))
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if err := ctx.Err(); err != nil {
		secret.Zero(raw)
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	// NewFromBytes takes ownership of raw and zeroes the original.
	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("protecting secret: %w", err)
	}
	return buffer, nil
}
