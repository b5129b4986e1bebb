// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bot's process configuration.
//
// Configuration is loaded from a single YAML file specified by:
//   - the DAVINTO_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There are no fallbacks or automatic discovery, and environment
// variables never override file values. The only expansion performed
// is ${HOME}-style path variables for portability.
package config
