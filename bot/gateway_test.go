// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/messaging"
)

func TestGatewaySendText(t *testing.T) {
	session := newFakeSession(botUser)
	gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

	if err := gw.SendText(context.Background(), groupRoom, "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	sent := session.sentEvents()
	if len(sent) != 1 {
		t.Fatalf("sent %d events, want 1", len(sent))
	}
	if sent[0].EventType != messaging.EventTypeMessage {
		t.Errorf("event type = %q, want %q", sent[0].EventType, messaging.EventTypeMessage)
	}
	if body := bodyOf(t, sent[0]); body != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestGatewaySendReply(t *testing.T) {
	session := newFakeSession(botUser)
	gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

	if err := gw.SendReply(context.Background(), groupRoom, "pong", "$orig"); err != nil {
		t.Fatalf("SendReply: %v", err)
	}

	sent := session.sentEvents()
	content := sent[0].Content.(messaging.MessageContent)
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil {
		t.Fatal("reply carries no relation")
	}
	if content.RelatesTo.InReplyTo.EventID != "$orig" {
		t.Errorf("quoted event = %q, want %q", content.RelatesTo.InReplyTo.EventID, "$orig")
	}
}

func TestGatewayMediaUploadDedupe(t *testing.T) {
	session := newFakeSession(botUser)
	gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

	media := Media{Content: []byte("png-bytes"), ContentType: "image/png", Filename: "art.png"}
	for i := 0; i < 3; i++ {
		if err := gw.SendImage(context.Background(), groupRoom, media, "a caption", ""); err != nil {
			t.Fatalf("SendImage #%d: %v", i+1, err)
		}
	}

	if session.uploads != 1 {
		t.Errorf("uploaded %d times for identical content, want 1", session.uploads)
	}
	if got := len(session.sentEvents()); got != 3 {
		t.Errorf("sent %d events, want 3", got)
	}

	// Different bytes upload separately.
	other := Media{Content: []byte("different"), ContentType: "image/png", Filename: "b.png"}
	if err := gw.SendImage(context.Background(), groupRoom, other, "", ""); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if session.uploads != 2 {
		t.Errorf("uploaded %d times after new content, want 2", session.uploads)
	}
}

func TestGatewaySendImageContent(t *testing.T) {
	session := newFakeSession(botUser)
	gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

	media := Media{Content: []byte("png"), ContentType: "image/png", Filename: "art.png", Width: 64, Height: 48}
	if err := gw.SendImage(context.Background(), groupRoom, media, "look at this", "$orig"); err != nil {
		t.Fatalf("SendImage: %v", err)
	}

	content := session.sentEvents()[0].Content.(messaging.MessageContent)
	if content.MsgType != messaging.MsgTypeImage {
		t.Errorf("msgtype = %q, want %q", content.MsgType, messaging.MsgTypeImage)
	}
	if content.Body != "look at this" {
		t.Errorf("body = %q, want the caption", content.Body)
	}
	if content.URL != session.uploadURI {
		t.Errorf("url = %q, want %q", content.URL, session.uploadURI)
	}
	if content.Info == nil || content.Info.Width != 64 || content.Info.Size != 3 {
		t.Errorf("media info = %+v, want width 64 size 3", content.Info)
	}
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo.EventID != "$orig" {
		t.Error("quoted relation missing from media message")
	}
}

func TestGatewaySendSticker(t *testing.T) {
	session := newFakeSession(botUser)
	gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

	media := Media{Content: []byte("webp"), ContentType: "image/webp", Filename: "sticker.webp"}
	if err := gw.SendSticker(context.Background(), groupRoom, media, "a sticker"); err != nil {
		t.Fatalf("SendSticker: %v", err)
	}

	sent := session.sentEvents()
	if sent[0].EventType != messaging.EventTypeSticker {
		t.Errorf("event type = %q, want %q", sent[0].EventType, messaging.EventTypeSticker)
	}
	content := sent[0].Content.(messaging.MessageContent)
	if content.MsgType != "" {
		t.Errorf("sticker carries msgtype %q, want none", content.MsgType)
	}
}

func TestGatewaySendRetry(t *testing.T) {
	t.Run("transient failure retries", func(t *testing.T) {
		session := newFakeSession(botUser)
		session.sendErrs = []error{
			&messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, StatusCode: 429},
			nil,
		}
		clk := clock.Fake(time.Unix(1000000000, 0))
		gw := NewGateway(session, clk, discardLogger())

		done := make(chan error, 1)
		go func() {
			done <- gw.SendText(context.Background(), groupRoom, "hello")
		}()

		clk.WaitForTimers(1)
		clk.Advance(time.Second)
		if err := <-done; err != nil {
			t.Fatalf("SendText after transient failure: %v", err)
		}
		if got := len(session.sentEvents()); got != 1 {
			t.Errorf("sent %d events, want 1", got)
		}
	})

	t.Run("retries reuse one transaction ID", func(t *testing.T) {
		session := newFakeSession(botUser)
		session.sendErrs = []error{
			errors.New("connection reset"),
			nil,
		}
		clk := clock.Fake(time.Unix(1000000000, 0))
		gw := NewGateway(session, clk, discardLogger())

		done := make(chan error, 1)
		go func() {
			done <- gw.SendText(context.Background(), groupRoom, "hello")
		}()

		clk.WaitForTimers(1)
		clk.Advance(time.Second)
		if err := <-done; err != nil {
			t.Fatalf("SendText after transient failure: %v", err)
		}

		// A resend under the same transaction ID lets the server
		// deduplicate an event it committed before the network
		// failure surfaced.
		txnIDs := session.transactionIDs()
		if len(txnIDs) != 2 {
			t.Fatalf("recorded %d send attempts, want 2", len(txnIDs))
		}
		if txnIDs[0] == "" || txnIDs[0] != txnIDs[1] {
			t.Errorf("attempt transaction IDs = %q, %q; want equal and non-empty", txnIDs[0], txnIDs[1])
		}

		if err := gw.SendText(context.Background(), groupRoom, "again"); err != nil {
			t.Fatalf("second SendText: %v", err)
		}
		txnIDs = session.transactionIDs()
		if txnIDs[2] == txnIDs[1] {
			t.Errorf("distinct logical sends shared transaction ID %q", txnIDs[2])
		}
	})

	t.Run("permanent failure does not retry", func(t *testing.T) {
		session := newFakeSession(botUser)
		permanent := &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
		session.sendErrs = []error{permanent}
		gw := NewGateway(session, clock.Fake(time.Unix(1000000000, 0)), discardLogger())

		err := gw.SendText(context.Background(), groupRoom, "hello")
		var matrixErr *messaging.MatrixError
		if !errors.As(err, &matrixErr) || matrixErr.Code != messaging.ErrCodeForbidden {
			t.Fatalf("SendText error = %v, want wrapped M_FORBIDDEN", err)
		}
		if got := len(session.sentEvents()); got != 0 {
			t.Errorf("sent %d events after permanent failure, want 0", got)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		session := newFakeSession(botUser)
		transient := &messaging.MatrixError{Code: messaging.ErrCodeUnknown, StatusCode: 502}
		session.sendErrs = []error{transient, transient, transient}
		clk := clock.Fake(time.Unix(1000000000, 0))
		gw := NewGateway(session, clk, discardLogger())

		done := make(chan error, 1)
		go func() {
			done <- gw.SendText(context.Background(), groupRoom, "hello")
		}()

		for i := 0; i < sendMaxAttempts-1; i++ {
			clk.WaitForTimers(1)
			clk.Advance(4 * time.Second)
		}
		if err := <-done; err == nil {
			t.Fatal("SendText succeeded despite persistent failures")
		}
		if got := len(session.sentEvents()); got != 0 {
			t.Errorf("sent %d events, want 0", got)
		}
	})
}

func TestGatewayEmptyMedia(t *testing.T) {
	gw := NewGateway(newFakeSession(botUser), clock.Fake(time.Unix(1000000000, 0)), discardLogger())
	if err := gw.SendImage(context.Background(), groupRoom, Media{}, "", ""); err == nil {
		t.Fatal("SendImage with empty content succeeded")
	}
}
