// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot implements the agent runtime: session lifecycle
// (pairing, login, sync, reconnect), inbound message dispatch, the
// command registry, and the outbound gateway.
//
// The SessionManager owns the connection to the homeserver. It pairs
// on first boot, persists sealed credentials, and runs the sync loop
// until the context is cancelled or the server revokes the token.
// Timeline events flow through the Dispatcher, which parses command
// invocations and runs registered handlers. Handlers reply through
// the Gateway, which wraps the session with bounded retry and media
// upload dedupe.
package bot
