// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/messaging"
)

// Sticker turns an image into a sticker. The command arrives as the
// caption of an image message; the sticker event references the same
// media the sender already uploaded, so nothing is re-transferred.
func Sticker() bot.Descriptor {
	return bot.Descriptor{
		Name:        "sticker",
		Description: "turn an image into a sticker (send it as the image caption)",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			if inv.Message.Kind != bot.KindImage {
				return gw.SendReply(ctx, inv.Message.ChatID, "Send an image with .sticker as its caption.", inv.Message.ID)
			}

			mxcURI, _ := inv.Message.Raw.Content["url"].(string)
			if mxcURI == "" {
				return gw.SendReply(ctx, inv.Message.ChatID, "That image has no media attached.", inv.Message.ID)
			}

			var info *messaging.MediaInfo
			if raw, ok := inv.Message.Raw.Content["info"].(map[string]any); ok {
				info = &messaging.MediaInfo{}
				if mimeType, ok := raw["mimetype"].(string); ok {
					info.MimeType = mimeType
				}
				// JSON numbers decode as float64.
				if width, ok := raw["w"].(float64); ok {
					info.Width = int(width)
				}
				if height, ok := raw["h"].(float64); ok {
					info.Height = int(height)
				}
				if size, ok := raw["size"].(float64); ok {
					info.Size = int64(size)
				}
			}

			return gw.SendStickerFromURI(ctx, inv.Message.ChatID, mxcURI, "sticker", info)
		},
	}
}

// Stats reports the runtime diagnostic counters.
func Stats(botName string, stats func() bot.Stats) bot.Descriptor {
	return bot.Descriptor{
		Name:        "stats",
		Description: "show runtime diagnostics",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			s := stats()
			reply := fmt.Sprintf("%s status\nUptime: %s\nEvents seen: %d\nCommands run: %d\nHandler errors: %d",
				botName, formatUptime(s.Uptime), s.EventsSeen, s.CommandsRun, s.HandlerErrors)
			return gw.SendReply(ctx, inv.Message.ChatID, reply, inv.Message.ID)
		},
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd%s", days, d)
	}
	return d.String()
}
