// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testSession builds a DirectSession against a fake homeserver.
func testSession(t *testing.T, handler http.Handler) *DirectSession {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken("@davinto:test.local", "BOTDEV1", testBuffer(t, "syt_token"))
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestWhoAmI(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		json.NewEncoder(writer).Encode(WhoAmIResponse{UserID: "@davinto:test.local"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID != "@davinto:test.local" {
		t.Errorf("WhoAmI = %q, want @davinto:test.local", userID)
	}
}

func TestWhoAmI_RevokedToken(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(writer).Encode(MatrixError{
			Code:    ErrCodeUnknownToken,
			Message: "Access token unknown or expired",
		})
	}))

	_, err := session.WhoAmI(context.Background())
	if err == nil {
		t.Fatal("expected error for revoked token")
	}
	if !IsLoggedOut(err) {
		t.Errorf("expected IsLoggedOut(err), got: %v", err)
	}
}

func TestSync(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		query := request.URL.Query()
		if got := query.Get("since"); got != "batch-5" {
			t.Errorf("since = %q, want batch-5", got)
		}
		if got := query.Get("timeout"); got != "30000" {
			t.Errorf("timeout = %q, want 30000", got)
		}

		json.NewEncoder(writer).Encode(SyncResponse{
			NextBatch: "batch-6",
			Rooms: RoomsSection{
				Join: map[string]JoinedRoom{
					"!room:test.local": {
						Timeline: TimelineSection{
							Events: []Event{{
								EventID: "$evt1",
								Type:    EventTypeMessage,
								Sender:  "@user:test.local",
								Content: map[string]any{"msgtype": "m.text", "body": ".ping"},
							}},
						},
						Summary: RoomSummary{JoinedMemberCount: 5},
					},
				},
			},
		})
	}))

	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "batch-5",
		Timeout:    30000,
		SetTimeout: true,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "batch-6" {
		t.Errorf("NextBatch = %q, want batch-6", response.NextBatch)
	}
	room, ok := response.Rooms.Join["!room:test.local"]
	if !ok {
		t.Fatal("joined room missing from response")
	}
	if len(room.Timeline.Events) != 1 {
		t.Fatalf("timeline has %d events, want 1", len(room.Timeline.Events))
	}
	if room.Summary.JoinedMemberCount != 5 {
		t.Errorf("JoinedMemberCount = %d, want 5", room.Summary.JoinedMemberCount)
	}
}

func TestSendMessage(t *testing.T) {
	var paths []string
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		paths = append(paths, request.URL.Path)

		var content MessageContent
		if err := json.NewDecoder(request.Body).Decode(&content); err != nil {
			t.Fatalf("failed to decode content: %v", err)
		}
		if content.MsgType != MsgTypeText {
			t.Errorf("msgtype = %q, want m.text", content.MsgType)
		}
		if content.Body != "Pong! 42ms" {
			t.Errorf("body = %q", content.Body)
		}

		json.NewEncoder(writer).Encode(SendEventResponse{EventID: "$sent1"})
	}))

	eventID, err := session.SendMessage(context.Background(), "!room:test.local", NewTextMessage("Pong! 42ms"))
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if eventID != "$sent1" {
		t.Errorf("eventID = %q, want $sent1", eventID)
	}

	// A second send must use a different transaction ID.
	if _, err := session.SendMessage(context.Background(), "!room:test.local", NewTextMessage("Pong! 42ms")); err != nil {
		t.Fatalf("second SendMessage failed: %v", err)
	}
	if len(paths) != 2 || paths[0] == paths[1] {
		t.Errorf("transaction IDs must differ across sends: %v", paths)
	}
	for _, path := range paths {
		if !strings.Contains(path, "/send/m.room.message/davinto-") {
			t.Errorf("path %q missing davinto transaction prefix", path)
		}
	}
}

func TestSendEventWithTransactionID(t *testing.T) {
	var paths []string
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		paths = append(paths, request.URL.Path)
		json.NewEncoder(writer).Encode(SendEventResponse{EventID: "$sent1"})
	}))

	// A retrying caller replays the same transaction ID; the path
	// must carry it verbatim so the server deduplicates.
	for i := 0; i < 2; i++ {
		if _, err := session.SendEventWithTransactionID(context.Background(),
			"!room:test.local", EventTypeMessage, "davinto-resend-1", NewTextMessage("hi")); err != nil {
			t.Fatalf("SendEventWithTransactionID failed: %v", err)
		}
	}
	if len(paths) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(paths))
	}
	for _, path := range paths {
		if !strings.HasSuffix(path, "/send/m.room.message/davinto-resend-1") {
			t.Errorf("path %q missing the supplied transaction ID", path)
		}
	}
}

func TestJoinRoom(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		want := "/_matrix/client/v3/join/" + "%21room:test.local"
		if request.URL.EscapedPath() != want {
			t.Errorf("path = %q, want %q", request.URL.EscapedPath(), want)
		}
		json.NewEncoder(writer).Encode(map[string]string{"room_id": "!room:test.local"})
	}))

	roomID, err := session.JoinRoom(context.Background(), "!room:test.local")
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if roomID != "!room:test.local" {
		t.Errorf("roomID = %q", roomID)
	}
}

func TestGetRoomMembers(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		json.NewEncoder(writer).Encode(RoomMembersResponse{
			Chunk: []RoomMemberEvent{
				{
					Type:     EventTypeMember,
					StateKey: "@alice:test.local",
					Content:  RoomMemberContent{Membership: "join", DisplayName: "Alice"},
				},
				{
					Type:     EventTypeMember,
					StateKey: "@bob:test.local",
					Content:  RoomMemberContent{Membership: "leave"},
				},
			},
		})
	}))

	members, err := session.GetRoomMembers(context.Background(), "!room:test.local")
	if err != nil {
		t.Fatalf("GetRoomMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].UserID != "@alice:test.local" || members[0].DisplayName != "Alice" {
		t.Errorf("unexpected first member: %+v", members[0])
	}
	if members[1].Membership != "leave" {
		t.Errorf("unexpected second membership: %q", members[1].Membership)
	}
}

func TestGetDisplayName(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(writer).Encode(DisplayNameResponse{DisplayName: "Alice"})
		}))
		name, err := session.GetDisplayName(context.Background(), "@alice:test.local")
		if err != nil {
			t.Fatalf("GetDisplayName failed: %v", err)
		}
		if name != "Alice" {
			t.Errorf("name = %q, want Alice", name)
		}
	})

	t.Run("unset", func(t *testing.T) {
		session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(MatrixError{Code: ErrCodeNotFound, Message: "no profile"})
		}))
		name, err := session.GetDisplayName(context.Background(), "@ghost:test.local")
		if err != nil {
			t.Fatalf("GetDisplayName failed: %v", err)
		}
		if name != "" {
			t.Errorf("name = %q, want empty", name)
		}
	})
}

func TestUploadMedia(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/media/v3/upload" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", got)
		}
		if got := request.URL.Query().Get("filename"); got != "art.png" {
			t.Errorf("filename = %q, want art.png", got)
		}
		payload, _ := io.ReadAll(request.Body)
		if string(payload) != "png-bytes" {
			t.Errorf("body = %q", payload)
		}
		json.NewEncoder(writer).Encode(UploadResponse{ContentURI: "mxc://test.local/abc123"})
	}))

	uri, err := session.UploadMedia(context.Background(), "image/png", "art.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UploadMedia failed: %v", err)
	}
	if uri != "mxc://test.local/abc123" {
		t.Errorf("uri = %q", uri)
	}
}

func TestMessageContentConstructors(t *testing.T) {
	t.Run("reply carries relation", func(t *testing.T) {
		content := NewReply("hello", "$quoted")
		if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil {
			t.Fatal("reply missing m.in_reply_to relation")
		}
		if content.RelatesTo.InReplyTo.EventID != "$quoted" {
			t.Errorf("quoted event = %q", content.RelatesTo.InReplyTo.EventID)
		}
	})

	t.Run("reply without quote has no relation", func(t *testing.T) {
		if content := NewReply("hello", ""); content.RelatesTo != nil {
			t.Error("unquoted reply must not carry a relation")
		}
	})

	t.Run("media caption in body", func(t *testing.T) {
		content := NewMediaMessage(MsgTypeImage, "mxc://x/y", "cat.png", "look at this cat", nil)
		if content.Body != "look at this cat" {
			t.Errorf("body = %q, want caption", content.Body)
		}
		if content.Filename != "cat.png" {
			t.Errorf("filename = %q", content.Filename)
		}
	})

	t.Run("media without caption repeats filename", func(t *testing.T) {
		content := NewMediaMessage(MsgTypeImage, "mxc://x/y", "cat.png", "", nil)
		if content.Body != "cat.png" {
			t.Errorf("body = %q, want cat.png", content.Body)
		}
	})

	t.Run("sticker has no msgtype", func(t *testing.T) {
		content := NewSticker("mxc://x/y", "a sticker", nil)
		if content.MsgType != "" {
			t.Errorf("sticker msgtype = %q, want empty", content.MsgType)
		}
	})
}

func TestLogout(t *testing.T) {
	var method, path string
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		method = request.Method
		path = request.URL.Path
		if got := request.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		json.NewEncoder(writer).Encode(map[string]any{})
	}))

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if method != http.MethodPost || path != "/_matrix/client/v3/logout" {
		t.Errorf("request = %s %s, want POST /_matrix/client/v3/logout", method, path)
	}
}
