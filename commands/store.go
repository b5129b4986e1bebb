// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/davinto-labs/davinto/bot"
	"github.com/davinto-labs/davinto/store"
)

// Profile shows the sender's display name and message count, and
// refreshes the stored name while at it.
func Profile(st *store.Store) bot.Descriptor {
	return bot.Descriptor{
		Name:        "profile",
		Description: "show your profile",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			sender := inv.Message.Sender

			name, err := gw.DisplayName(ctx, sender)
			if err != nil {
				return fmt.Errorf("resolving display name: %w", err)
			}
			if name == "" {
				name = sender
			}

			var count int
			if err := st.Profiles.Update(func(profiles map[string]store.UserProfile) {
				profile := profiles[sender]
				profile.Name = name
				profiles[sender] = profile
				count = profile.Count
			}); err != nil {
				return fmt.Errorf("updating profile: %w", err)
			}

			reply := fmt.Sprintf("Name: %s\nMessages: %d", name, count)
			return gw.SendReply(ctx, inv.Message.ChatID, reply, inv.Message.ID)
		},
	}
}

// Score shows the chat's scoreboard, highest first.
func Score(st *store.Store) bot.Descriptor {
	return bot.Descriptor{
		Name:        "score",
		Description: "show the group scoreboard",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			scores, err := st.Scores.Load()
			if err != nil {
				return fmt.Errorf("loading scores: %w", err)
			}

			board := scores[inv.Message.ChatID]
			if len(board) == 0 {
				return gw.SendReply(ctx, inv.Message.ChatID, "No scores yet.", inv.Message.ID)
			}

			type entry struct {
				user  string
				score int
			}
			entries := make([]entry, 0, len(board))
			for user, score := range board {
				entries = append(entries, entry{user, score})
			}
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].score != entries[j].score {
					return entries[i].score > entries[j].score
				}
				return entries[i].user < entries[j].user
			})

			var b strings.Builder
			b.WriteString("Scoreboard:\n")
			for rank, e := range entries {
				fmt.Fprintf(&b, "%d. %s: %d\n", rank+1, e.user, e.score)
			}
			return gw.SendReply(ctx, inv.Message.ChatID, strings.TrimRight(b.String(), "\n"), inv.Message.ID)
		},
	}
}

// NSFW toggles the group's adult-content flag. Owner-only with the
// gate's specific denial text, and meaningless outside groups.
func NSFW(st *store.Store) bot.Descriptor {
	return bot.Descriptor{
		Name:        "nsfw",
		Description: "enable or disable NSFW commands in this group",
		OwnerOnly:   true,
		GroupOnly:   true,
		OwnerDenial: "Only the bot owner can enable/disable NSFW.",
		Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
			if len(inv.Args) != 1 || (inv.Args[0] != "on" && inv.Args[0] != "off") {
				return gw.SendReply(ctx, inv.Message.ChatID, "Usage: nsfw on|off", inv.Message.ID)
			}
			enable := inv.Args[0] == "on"

			if err := st.Settings.Update(func(settings map[string]store.GroupSettings) {
				group := settings[inv.Message.ChatID]
				group.NSFW = enable
				settings[inv.Message.ChatID] = group
			}); err != nil {
				return fmt.Errorf("updating group settings: %w", err)
			}

			reply := "NSFW disabled."
			if enable {
				reply = "NSFW enabled."
			}
			return gw.SendReply(ctx, inv.Message.ChatID, reply, inv.Message.ID)
		},
	}
}

// NSFWPlaceholders are the adult-content commands. The media sources
// are not wired up; they exist so the feature-flag gate guards real
// registrations, and they stay out of the menu.
func NSFWPlaceholders() []bot.Descriptor {
	placeholders := make([]bot.Descriptor, 0, 3)
	for _, name := range []string{"hentai", "r34", "nude"} {
		placeholders = append(placeholders, bot.Descriptor{
			Name:         name,
			Hidden:       true,
			GroupOnly:    true,
			RequiresNSFW: true,
			Run: func(ctx context.Context, gw *bot.Gateway, inv bot.Invocation) error {
				return gw.SendReply(ctx, inv.Message.ChatID, "This command is not available yet.", inv.Message.ID)
			},
		})
	}
	return placeholders
}
