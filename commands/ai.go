// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/llm"
)

// AI answers a free-form prompt with a chat completion.
func AI(client *llm.Client, botName string) bot.Descriptor {
	system := fmt.Sprintf("You are %s, a helpful chat bot. Keep answers short; this is a chat room.", botName)
	return bot.Descriptor{
		Name:        "ai",
		Description: "ask the bot a question",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			prompt := inv.ArgText()
			if prompt == "" {
				return gw.SendReply(ctx, inv.Message.ChatID, "Usage: ai <prompt>", inv.Message.ID)
			}
			answer, err := client.Complete(ctx, system, prompt)
			if err != nil {
				return fmt.Errorf("completing prompt: %w", err)
			}
			return gw.SendReply(ctx, inv.Message.ChatID, answer, inv.Message.ID)
		},
	}
}

// Image renders a prompt with the image model and replies with the
// picture, captioned with the prompt.
func Image(client *llm.Client) bot.Descriptor {
	return bot.Descriptor{
		Name:        "image",
		Description: "generate an image from a prompt",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			prompt := inv.ArgText()
			if prompt == "" {
				return gw.SendReply(ctx, inv.Message.ChatID, "Usage: image <prompt>", inv.Message.ID)
			}
			picture, err := client.GenerateImage(ctx, prompt)
			if err != nil {
				return fmt.Errorf("generating image: %w", err)
			}
			media := bot.Media{
				Content:     picture,
				ContentType: "image/png",
				Filename:    "generated.png",
			}
			return gw.SendImage(ctx, inv.Message.ChatID, media, prompt, inv.Message.ID)
		},
	}
}

// Unavailable is registered in place of the AI commands when no
// language-model backend is configured.
func Unavailable(name, description string) bot.Descriptor {
	return bot.Descriptor{
		Name:        name,
		Description: description,
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			return gw.SendReply(ctx, inv.Message.ChatID, "This command needs an AI backend, and none is configured.", inv.Message.ID)
		},
	}
}
