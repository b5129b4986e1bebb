// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"io"
)

// Session is the subset of DirectSession the bot core consumes. The
// session manager, dispatcher, and gateway depend on this interface
// so tests can substitute in-memory fakes that count calls and fail
// on demand.
//
// Credential-surface methods (AccessToken, DeviceID, Logout) are not
// part of the interface; code that persists credentials type-asserts
// to *DirectSession.
type Session interface {
	// UserID returns the fully-qualified user ID for this session.
	UserID() string

	// Close releases resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (string, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// SendMessage sends an m.room.message event. Returns the event ID.
	SendMessage(ctx context.Context, roomID string, content MessageContent) (string, error)

	// SendEvent sends an event of any type under a freshly minted
	// transaction ID. Returns the event ID.
	SendEvent(ctx context.Context, roomID, eventType string, content any) (string, error)

	// SendEventWithTransactionID sends an event under a
	// caller-supplied transaction ID. Retrying callers reuse one ID
	// across attempts so the server deduplicates resends.
	SendEventWithTransactionID(ctx context.Context, roomID, eventType, transactionID string, content any) (string, error)

	// JoinRoom joins a room by ID.
	JoinRoom(ctx context.Context, roomID string) (string, error)

	// GetRoomMembers returns the current members of a room.
	GetRoomMembers(ctx context.Context, roomID string) ([]RoomMember, error)

	// GetDisplayName fetches a user's profile display name.
	GetDisplayName(ctx context.Context, userID string) (string, error)

	// UploadMedia uploads content to the media repository and returns
	// the mxc:// URI.
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)

	// CloseIdleConnections drops idle pooled connections.
	CloseIdleConnections()
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
