// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands holds the built-in command handlers. Each
// constructor returns a bot.Descriptor with its gates declared;
// cmd/davintod registers them all at startup and freezes the
// registry before dispatch begins.
package commands
