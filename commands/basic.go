// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/lib/clock"
)

// Ping measures the round trip of one send: reply "Pinging...", time
// how long the send took, then report it.
func Ping(clk clock.Clock) bot.Descriptor {
	return bot.Descriptor{
		Name:        "ping",
		Description: "measure the bot's reply latency",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			start := clk.Now()
			if err := gw.SendReply(ctx, inv.Message.ChatID, "Pinging...", inv.Message.ID); err != nil {
				return err
			}
			elapsed := clk.Now().Sub(start)
			return gw.SendText(ctx, inv.Message.ChatID, fmt.Sprintf("Pong! %dms", elapsed.Milliseconds()))
		},
	}
}

// Menu lists the registered commands. Registered under "menu" with a
// "help" alias.
func Menu(registry *bot.Registry, botName, prefix string) bot.Descriptor {
	return bot.Descriptor{
		Name:        "menu",
		Aliases:     []string{"help"},
		Description: "list available commands",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			var b strings.Builder
			fmt.Fprintf(&b, "%s commands:\n", botName)
			for _, desc := range registry.Visible() {
				fmt.Fprintf(&b, "%s%s", prefix, desc.Name)
				if desc.Description != "" {
					fmt.Fprintf(&b, " - %s", desc.Description)
				}
				b.WriteString("\n")
			}
			return gw.SendReply(ctx, inv.Message.ChatID, strings.TrimRight(b.String(), "\n"), inv.Message.ID)
		},
	}
}

// Reverse echoes the argument text backwards.
func Reverse() bot.Descriptor {
	return bot.Descriptor{
		Name:        "reverse",
		Description: "reverse the given text",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			text := inv.ArgText()
			if text == "" {
				return gw.SendReply(ctx, inv.Message.ChatID, "Usage: reverse <text>", inv.Message.ID)
			}
			runes := []rune(text)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return gw.SendReply(ctx, inv.Message.ChatID, string(runes), inv.Message.ID)
		},
	}
}

// Emojify renders letters as regional-indicator emoji.
func Emojify() bot.Descriptor {
	return bot.Descriptor{
		Name:        "emojify",
		Description: "turn text into emoji letters",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			text := inv.ArgText()
			if text == "" {
				return gw.SendReply(ctx, inv.Message.ChatID, "Usage: emojify <text>", inv.Message.ID)
			}
			return gw.SendReply(ctx, inv.Message.ChatID, emojify(text), inv.Message.ID)
		},
	}
}

// regionalIndicatorA starts the emoji letter block.
const regionalIndicatorA = 0x1F1E6

func emojify(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(regionalIndicatorA + (r - 'a'))
			// A separator keeps adjacent letters from rendering as
			// a flag.
			b.WriteRune(' ')
		case r == ' ':
			// Letters already carry a trailing separator; one more
			// space widens the word gap.
			b.WriteString(" ")
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// YouTube and TikTok are placeholders: the download pipeline is not
// wired up, and the commands say so instead of failing silently.
func YouTube() bot.Descriptor {
	return bot.Descriptor{
		Name:        "yt",
		Aliases:     []string{"youtube"},
		Description: "download a YouTube video",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			return gw.SendReply(ctx, inv.Message.ChatID, "YouTube downloads are not available yet.", inv.Message.ID)
		},
	}
}

func TikTok() bot.Descriptor {
	return bot.Descriptor{
		Name:        "tiktok",
		Description: "download a TikTok video",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			return gw.SendReply(ctx, inv.Message.ChatID, "TikTok downloads are not available yet.", inv.Message.ID)
		},
	}
}
