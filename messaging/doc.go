// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for the bot's
// transport needs.
//
// [Client] is an unauthenticated client that handles pairing
// (token-authenticated registration via the MSC3231 UIAA flow),
// password login, and session restoration from a stored access token,
// returning authenticated [DirectSession] values. Client holds the
// homeserver URL and HTTP transport, shared across the sessions
// derived from it.
//
// [DirectSession] wraps a Client with an access token for the
// authenticated operations the bot performs: incremental sync with
// long-polling, sending message events, joining rooms, room
// membership and profile lookups, and media upload. The access token
// lives in mmap-backed secret.Buffer memory (locked against swap,
// excluded from core dumps); callers must Close the session to
// release it.
//
// API errors come back as [*MatrixError] carrying the standard Matrix
// error code (M_FORBIDDEN, M_UNKNOWN_TOKEN, ...) and HTTP status.
// [IsMatrixError] tests for a specific code; [IsLoggedOut] tests for
// the token-revoked condition that ends a session permanently.
// Request URLs are built by string concatenation rather than url.URL
// to avoid double-encoding path segments that already contain
// URL-encoded characters (room IDs, user IDs).
//
// The [Session] interface covers the subset of DirectSession the bot
// core consumes, so tests can substitute in-memory fakes.
package messaging
