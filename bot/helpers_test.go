// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/davinto-labs/davinto/messaging"
	"github.com/davinto-labs/davinto/store"
)

// sentEvent records one SendEvent call on the fake session.
type sentEvent struct {
	RoomID    string
	EventType string
	Content   any
}

// fakeSession is an in-memory messaging.Session. Scripted errors pop
// in order: sendErrs for SendEvent, syncScript for Sync. When the
// sync script is exhausted, Sync blocks until the context ends.
type fakeSession struct {
	mu sync.Mutex

	userID string

	sends         []sentEvent
	sendErrs      []error
	attemptTxnIDs []string

	uploads   int
	uploadURI string

	syncScript []syncResult
	syncCalls  int

	members      map[string][]messaging.RoomMember
	displayNames map[string]string

	joined []string
	closed bool
}

type syncResult struct {
	response *messaging.SyncResponse
	err      error
}

var _ messaging.Session = (*fakeSession)(nil)

func newFakeSession(userID string) *fakeSession {
	return &fakeSession{
		userID:       userID,
		uploadURI:    "mxc://test.local/media1",
		members:      make(map[string][]messaging.RoomMember),
		displayNames: make(map[string]string),
	}
}

func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) CloseIdleConnections() {}

func (f *fakeSession) WhoAmI(ctx context.Context) (string, error) {
	return f.userID, nil
}

func (f *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	f.mu.Lock()
	f.syncCalls++
	if len(f.syncScript) > 0 {
		next := f.syncScript[0]
		f.syncScript = f.syncScript[1:]
		f.mu.Unlock()
		return next.response, next.err
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSession) SendMessage(ctx context.Context, roomID string, content messaging.MessageContent) (string, error) {
	return f.SendEvent(ctx, roomID, messaging.EventTypeMessage, content)
}

func (f *fakeSession) SendEvent(ctx context.Context, roomID, eventType string, content any) (string, error) {
	return f.SendEventWithTransactionID(ctx, roomID, eventType, messaging.NewTransactionID(), content)
}

func (f *fakeSession) SendEventWithTransactionID(ctx context.Context, roomID, eventType, transactionID string, content any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attemptTxnIDs = append(f.attemptTxnIDs, transactionID)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.sends = append(f.sends, sentEvent{RoomID: roomID, EventType: eventType, Content: content})
	return fmt.Sprintf("$event-%d", len(f.sends)), nil
}

// transactionIDs returns the transaction ID of every send attempt,
// failed attempts included.
func (f *fakeSession) transactionIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attemptTxnIDs...)
}

func (f *fakeSession) JoinRoom(ctx context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return roomID, nil
}

func (f *fakeSession) GetRoomMembers(ctx context.Context, roomID string) ([]messaging.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[roomID], nil
}

func (f *fakeSession) GetDisplayName(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.displayNames[userID], nil
}

func (f *fakeSession) UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return f.uploadURI, nil
}

// sentEvents returns a snapshot of recorded sends.
func (f *fakeSession) sentEvents() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEvent(nil), f.sends...)
}

// discardLogger drops all log output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testStore opens a store rooted in a temp directory.
func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return st
}

// textMessageEvent builds an m.room.message text event.
func textMessageEvent(eventID, sender, body string) messaging.Event {
	return messaging.Event{
		EventID: eventID,
		Type:    messaging.EventTypeMessage,
		Sender:  sender,
		Content: map[string]any{
			"msgtype": messaging.MsgTypeText,
			"body":    body,
		},
	}
}

// bodyOf extracts the text body from a recorded send.
func bodyOf(t *testing.T, event sentEvent) string {
	t.Helper()
	content, ok := event.Content.(messaging.MessageContent)
	if !ok {
		t.Fatalf("sent content has type %T, want messaging.MessageContent", event.Content)
	}
	return content.Body
}
