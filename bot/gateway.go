// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/messaging"
)

// Media describes an attachment to send: raw content plus the
// metadata the receiving client needs to render it.
type Media struct {
	Content     []byte
	ContentType string
	Filename    string
	Width       int
	Height      int
}

// Gateway is the outbound side of the bot: handlers reply through it.
// It wraps the live session with bounded retry and deduplicates media
// uploads by content hash, so repeated sends of the same sticker or
// generated image reuse the earlier mxc URI.
type Gateway struct {
	session messaging.Session
	clock   clock.Clock
	logger  *slog.Logger
	policy  RetryPolicy

	uploadMu sync.Mutex
	uploads  map[[32]byte]string
}

// NewGateway wraps a session. The clock drives retry backoff; tests
// pass a fake.
func NewGateway(session messaging.Session, clk clock.Clock, logger *slog.Logger) *Gateway {
	return &Gateway{
		session: session,
		clock:   clk,
		logger:  logger,
		policy:  RetryPolicy{Base: time.Second, Max: 4 * time.Second},
		uploads: make(map[[32]byte]string),
	}
}

// DisplayName resolves a user's profile display name, empty when the
// user never set one. Used by handlers that address the sender.
func (g *Gateway) DisplayName(ctx context.Context, userID string) (string, error) {
	return g.session.GetDisplayName(ctx, userID)
}

// SendText posts a plain text message to a room.
func (g *Gateway) SendText(ctx context.Context, roomID, body string) error {
	return g.sendRetry(ctx, roomID, messaging.EventTypeMessage, messaging.NewTextMessage(body))
}

// SendReply posts a text message quoting the given event. An empty
// quotedEventID degrades to SendText.
func (g *Gateway) SendReply(ctx context.Context, roomID, body, quotedEventID string) error {
	return g.sendRetry(ctx, roomID, messaging.EventTypeMessage, messaging.NewReply(body, quotedEventID))
}

// SendImage uploads the image (or reuses a prior upload of identical
// content) and posts an m.image message. Caption and quote are
// optional.
func (g *Gateway) SendImage(ctx context.Context, roomID string, media Media, caption, quotedEventID string) error {
	return g.sendMedia(ctx, roomID, messaging.MsgTypeImage, media, caption, quotedEventID)
}

// SendVideo uploads the video and posts an m.video message.
func (g *Gateway) SendVideo(ctx context.Context, roomID string, media Media, caption, quotedEventID string) error {
	return g.sendMedia(ctx, roomID, messaging.MsgTypeVideo, media, caption, quotedEventID)
}

// SendSticker uploads the sticker image and posts an m.sticker event.
func (g *Gateway) SendSticker(ctx context.Context, roomID string, media Media, description string) error {
	mxcURI, err := g.upload(ctx, media)
	if err != nil {
		return err
	}
	content := messaging.NewSticker(mxcURI, description, g.mediaInfo(media))
	return g.sendRetry(ctx, roomID, messaging.EventTypeSticker, content)
}

// SendStickerFromURI posts an m.sticker event referencing media that
// is already in the media repository, skipping the upload entirely.
func (g *Gateway) SendStickerFromURI(ctx context.Context, roomID, mxcURI, description string, info *messaging.MediaInfo) error {
	if mxcURI == "" {
		return fmt.Errorf("bot: empty media URI")
	}
	content := messaging.NewSticker(mxcURI, description, info)
	return g.sendRetry(ctx, roomID, messaging.EventTypeSticker, content)
}

func (g *Gateway) sendMedia(ctx context.Context, roomID, msgType string, media Media, caption, quotedEventID string) error {
	mxcURI, err := g.upload(ctx, media)
	if err != nil {
		return err
	}
	content := messaging.NewMediaMessage(msgType, mxcURI, media.Filename, caption, g.mediaInfo(media))
	if quotedEventID != "" {
		content.RelatesTo = &messaging.RelatesTo{
			InReplyTo: &messaging.InReplyTo{EventID: quotedEventID},
		}
	}
	return g.sendRetry(ctx, roomID, messaging.EventTypeMessage, content)
}

func (g *Gateway) mediaInfo(media Media) *messaging.MediaInfo {
	return &messaging.MediaInfo{
		MimeType: media.ContentType,
		Size:     int64(len(media.Content)),
		Width:    media.Width,
		Height:   media.Height,
	}
}

// upload sends media content to the homeserver, keyed by content hash
// so identical bytes upload once per process lifetime.
func (g *Gateway) upload(ctx context.Context, media Media) (string, error) {
	if len(media.Content) == 0 {
		return "", fmt.Errorf("bot: empty media content")
	}
	sum := blake3.Sum256(media.Content)

	g.uploadMu.Lock()
	mxcURI, cached := g.uploads[sum]
	g.uploadMu.Unlock()
	if cached {
		return mxcURI, nil
	}

	mxcURI, err := g.session.UploadMedia(ctx, media.ContentType, media.Filename, bytes.NewReader(media.Content))
	if err != nil {
		return "", fmt.Errorf("bot: uploading media: %w", err)
	}

	g.uploadMu.Lock()
	g.uploads[sum] = mxcURI
	g.uploadMu.Unlock()
	return mxcURI, nil
}

// sendRetry sends an event with bounded retry: transient failures
// (rate limits, server errors, network faults) back off and retry up
// to sendMaxAttempts; permanent failures return immediately. One
// transaction ID covers every attempt, so an event the server
// committed before the failure surfaced is deduplicated rather than
// delivered twice.
func (g *Gateway) sendRetry(ctx context.Context, roomID, eventType string, content messaging.MessageContent) error {
	transactionID := messaging.NewTransactionID()
	var lastErr error
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.policy.Wait(ctx, g.clock, attempt-1); err != nil {
				return err
			}
		}

		_, err := g.session.SendEventWithTransactionID(ctx, roomID, eventType, transactionID, content)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return fmt.Errorf("bot: sending event: %w", err)
		}
		g.logger.Warn("send failed, retrying",
			"room_id", roomID, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("bot: sending event after %d attempts: %w", sendMaxAttempts, lastErr)
}
