// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"io"

	"github.com/davinto-labs/davinto/messaging"
)

// ErrNotConnected is returned by the session proxy when no live
// connection exists, for example while a reconnect is in flight.
var ErrNotConnected = errors.New("bot: not connected")

// Proxy returns a messaging.Session view that always delegates to the
// manager's current connection. The gateway and command handlers hold
// the proxy so they survive reconnects: after the manager swaps in a
// fresh session, calls through the proxy reach the new one. While
// disconnected, every call fails with ErrNotConnected.
func (m *SessionManager) Proxy() messaging.Session {
	return &sessionProxy{manager: m}
}

type sessionProxy struct {
	manager *SessionManager
}

func (p *sessionProxy) current() (messaging.Session, error) {
	p.manager.activeMu.Lock()
	defer p.manager.activeMu.Unlock()
	if p.manager.active == nil {
		return nil, ErrNotConnected
	}
	return p.manager.active, nil
}

func (p *sessionProxy) UserID() string {
	return p.manager.UserID()
}

// Close is a no-op: the manager owns the underlying session's
// lifecycle.
func (p *sessionProxy) Close() error {
	return nil
}

func (p *sessionProxy) WhoAmI(ctx context.Context) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.WhoAmI(ctx)
}

func (p *sessionProxy) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	session, err := p.current()
	if err != nil {
		return nil, err
	}
	return session.Sync(ctx, options)
}

func (p *sessionProxy) SendMessage(ctx context.Context, roomID string, content messaging.MessageContent) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.SendMessage(ctx, roomID, content)
}

func (p *sessionProxy) SendEvent(ctx context.Context, roomID, eventType string, content any) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.SendEvent(ctx, roomID, eventType, content)
}

func (p *sessionProxy) SendEventWithTransactionID(ctx context.Context, roomID, eventType, transactionID string, content any) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.SendEventWithTransactionID(ctx, roomID, eventType, transactionID, content)
}

func (p *sessionProxy) JoinRoom(ctx context.Context, roomID string) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.JoinRoom(ctx, roomID)
}

func (p *sessionProxy) GetRoomMembers(ctx context.Context, roomID string) ([]messaging.RoomMember, error) {
	session, err := p.current()
	if err != nil {
		return nil, err
	}
	return session.GetRoomMembers(ctx, roomID)
}

func (p *sessionProxy) GetDisplayName(ctx context.Context, userID string) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.GetDisplayName(ctx, userID)
}

func (p *sessionProxy) UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error) {
	session, err := p.current()
	if err != nil {
		return "", err
	}
	return session.UploadMedia(ctx, contentType, filename, body)
}

func (p *sessionProxy) CloseIdleConnections() {
	if session, err := p.current(); err == nil {
		session.CloseIdleConnections()
	}
}

var _ messaging.Session = (*sessionProxy)(nil)
