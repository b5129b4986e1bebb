// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/llm"
	"github.com/davinto-labs/davinto/store"
)

// Deps carries everything the built-in commands need.
type Deps struct {
	Registry *bot.Registry
	Store    *store.Store
	Clock    clock.Clock

	// LLM is nil when no AI backend is configured; the ai and image
	// commands then reply that they are unavailable.
	LLM *llm.Client

	BotName string
	Prefix  string

	// Stats snapshots the dispatcher counters for the stats command.
	Stats func() bot.Stats
}

// RegisterAll registers every built-in command. The caller freezes
// the registry afterwards.
func RegisterAll(deps Deps) error {
	descriptors := []bot.Descriptor{
		Ping(deps.Clock),
		Menu(deps.Registry, deps.BotName, deps.Prefix),
		Profile(deps.Store),
		Score(deps.Store),
		NSFW(deps.Store),
		Reverse(),
		Emojify(),
		Sticker(),
		YouTube(),
		TikTok(),
		Stats(deps.BotName, deps.Stats),
	}

	if deps.LLM != nil {
		descriptors = append(descriptors,
			AI(deps.LLM, deps.BotName),
			Image(deps.LLM),
		)
	} else {
		descriptors = append(descriptors,
			Unavailable("ai", "ask the bot a question"),
			Unavailable("image", "generate an image from a prompt"),
		)
	}

	descriptors = append(descriptors, NSFWPlaceholders()...)

	for _, desc := range descriptors {
		if err := deps.Registry.Register(desc); err != nil {
			return fmt.Errorf("commands: registering %q: %w", desc.Name, err)
		}
	}
	return nil
}
