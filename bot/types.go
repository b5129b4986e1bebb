// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "github.com/davinto-labs/davinto/messaging"

// MessageKind classifies an inbound timeline event by content shape.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindImage   MessageKind = "image"
	KindVideo   MessageKind = "video"
	KindSticker MessageKind = "sticker"
	KindOther   MessageKind = "other"
)

// InboundMessage is a normalized timeline event as seen by command
// handlers. Text carries the message body for text messages and the
// caption for media messages; it is empty when the event has neither.
type InboundMessage struct {
	ID      string
	ChatID  string
	Sender  string
	IsGroup bool
	Kind    MessageKind
	Text    string

	// Raw is the original event, for handlers that need fields the
	// normalized form drops (media URIs, relations).
	Raw messaging.Event
}

// Invocation is a parsed command: the resolved lowercase name and the
// whitespace-split arguments after it.
type Invocation struct {
	Name    string
	Args    []string
	Message InboundMessage
}

// ArgText joins the arguments back into a single string, preserving
// single spaces between words. Commands that take free-form text
// (prompts, text to transform) use this rather than Args.
func (inv Invocation) ArgText() string {
	if len(inv.Args) == 0 {
		return ""
	}
	text := inv.Args[0]
	for _, arg := range inv.Args[1:] {
		text += " " + arg
	}
	return text
}
