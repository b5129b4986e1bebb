// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davinto-labs/davinto/lib/clock"
	"github.com/davinto-labs/davinto/messaging"
	"github.com/davinto-labs/davinto/store"
)

// Fixed gate-rejection and error-boundary replies. Authorization
// rejections are expected control flow, each producing exactly one
// user-facing message.
const (
	replyNSFWDisabled = "NSFW is disabled in this group. Use .nsfw on (admin only)"
	replyOwnerOnly    = "This command can only be used by the bot owner."
	replyGroupOnly    = "This command can only be used in groups."
	replyHandlerError = "Something went wrong while running that command."
)

// Stats is a snapshot of dispatcher counters, served by the stats
// command.
type Stats struct {
	Uptime        time.Duration
	EventsSeen    int64
	CommandsRun   int64
	HandlerErrors int64
}

// Dispatcher routes normalized inbound messages to command handlers:
// filter, extract text, bump profile telemetry, parse the prefix
// syntax, enforce authorization gates, and run the handler in its own
// goroutine behind a panic/error boundary.
type Dispatcher struct {
	registry *Registry
	gateway  *Gateway
	store    *store.Store
	clock    clock.Clock
	logger   *slog.Logger

	selfUserID string
	owner      string
	prefix     string

	started       time.Time
	eventsSeen    atomic.Int64
	commandsRun   atomic.Int64
	handlerErrors atomic.Int64

	handlers sync.WaitGroup
}

// NewDispatcher wires the dispatch engine. selfUserID filters the
// bot's own echoed sends; owner gates owner-only commands; prefix is
// the command sigil (default ".").
func NewDispatcher(registry *Registry, gateway *Gateway, st *store.Store, clk clock.Clock, logger *slog.Logger, selfUserID, owner, prefix string) *Dispatcher {
	if prefix == "" {
		prefix = "."
	}
	return &Dispatcher{
		registry:   registry,
		gateway:    gateway,
		store:      st,
		clock:      clk,
		logger:     logger,
		selfUserID: selfUserID,
		owner:      owner,
		prefix:     prefix,
		started:    clk.Now(),
	}
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Uptime:        d.clock.Now().Sub(d.started),
		EventsSeen:    d.eventsSeen.Load(),
		CommandsRun:   d.commandsRun.Load(),
		HandlerErrors: d.handlerErrors.Load(),
	}
}

// Wait blocks until all in-flight handlers finish. Called during
// shutdown after event intake has stopped; in-flight handlers are
// drained, not aborted.
func (d *Dispatcher) Wait() {
	d.handlers.Wait()
}

// Dispatch processes one timeline event. Events from the bot itself
// and events without a message payload are discarded silently.
func (d *Dispatcher) Dispatch(ctx context.Context, event messaging.Event, roomID string, isGroup bool) {
	if event.Sender == d.selfUserID || event.Sender == "" {
		return
	}
	if event.Type != messaging.EventTypeMessage && event.Type != messaging.EventTypeSticker {
		return
	}
	kind, text := classify(event)

	d.eventsSeen.Add(1)

	msg := InboundMessage{
		ID:      event.EventID,
		ChatID:  roomID,
		Sender:  event.Sender,
		IsGroup: isGroup,
		Kind:    kind,
		Text:    text,
		Raw:     event,
	}

	// Message-count telemetry for every message that passes the
	// filters, command or not. Persistence failures here are logged
	// and tolerated; telemetry is observational.
	if err := d.store.Profiles.Update(func(profiles map[string]store.UserProfile) {
		profile := profiles[msg.Sender]
		profile.Count++
		profiles[msg.Sender] = profile
	}); err != nil {
		d.logger.Warn("profile telemetry update failed", "sender", msg.Sender, "error", err)
	}

	inv, ok := d.parseInvocation(msg)
	if !ok {
		return
	}

	descriptor, found := d.registry.Resolve(inv.Name)
	if !found {
		// Unknown commands are ignored without a reply; only
		// recognized-but-unauthorized commands answer.
		return
	}

	if !d.authorize(ctx, descriptor, inv) {
		return
	}

	d.commandsRun.Add(1)
	d.handlers.Add(1)
	go func() {
		defer d.handlers.Done()
		d.runHandler(ctx, descriptor, inv)
	}()
}

// parseInvocation recognizes the command syntax: text starting with
// the prefix, tokenized on whitespace, name case-folded. No quoting.
func (d *Dispatcher) parseInvocation(msg InboundMessage) (Invocation, bool) {
	if !strings.HasPrefix(msg.Text, d.prefix) {
		return Invocation{}, false
	}
	fields := strings.Fields(msg.Text[len(d.prefix):])
	if len(fields) == 0 {
		return Invocation{}, false
	}
	return Invocation{
		Name:    strings.ToLower(fields[0]),
		Args:    fields[1:],
		Message: msg,
	}, true
}

// authorize runs the gate chain: feature flag, then role, then scope.
// The first failing gate replies once and aborts dispatch.
func (d *Dispatcher) authorize(ctx context.Context, descriptor *Descriptor, inv Invocation) bool {
	if descriptor.RequiresNSFW && !d.nsfwEnabled(inv.Message.ChatID) {
		d.reject(ctx, inv, replyNSFWDisabled)
		return false
	}
	if descriptor.OwnerOnly && inv.Message.Sender != d.owner {
		denial := descriptor.OwnerDenial
		if denial == "" {
			denial = replyOwnerOnly
		}
		d.reject(ctx, inv, denial)
		return false
	}
	if descriptor.GroupOnly && !inv.Message.IsGroup {
		d.reject(ctx, inv, replyGroupOnly)
		return false
	}
	return true
}

func (d *Dispatcher) nsfwEnabled(chatID string) bool {
	settings, err := d.store.Settings.Load()
	if err != nil {
		d.logger.Warn("loading group settings failed", "chat_id", chatID, "error", err)
		return false
	}
	return settings[chatID].NSFW
}

func (d *Dispatcher) reject(ctx context.Context, inv Invocation, reply string) {
	if err := d.gateway.SendReply(ctx, inv.Message.ChatID, reply, inv.Message.ID); err != nil {
		d.logger.Error("sending gate rejection failed",
			"chat_id", inv.Message.ChatID, "command", inv.Name, "error", err)
	}
}

// runHandler is the error boundary: panics and errors are logged and
// converted into one generic reply; the engine keeps running.
func (d *Dispatcher) runHandler(ctx context.Context, descriptor *Descriptor, inv Invocation) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.handlerErrors.Add(1)
			d.logger.Error("command handler panicked",
				"command", inv.Name, "chat_id", inv.Message.ChatID,
				"panic", recovered, "stack", string(debug.Stack()))
			d.reject(ctx, inv, replyHandlerError)
		}
	}()

	if err := descriptor.Run(ctx, d.gateway, inv); err != nil {
		d.handlerErrors.Add(1)
		d.logger.Error("command handler failed",
			"command", inv.Name, "chat_id", inv.Message.ChatID,
			"sender", inv.Message.Sender, "error", err)
		d.reject(ctx, inv, replyHandlerError)
	}
}

// classify maps an event to a message kind and its canonical text
// payload. For media, the body is the caption only when a filename
// field marks the body as free text rather than the filename itself.
func classify(event messaging.Event) (MessageKind, string) {
	if event.Type == messaging.EventTypeSticker {
		return KindSticker, ""
	}
	if event.Type != messaging.EventTypeMessage {
		return KindOther, ""
	}
	body, _ := event.Content["body"].(string)
	msgtype, _ := event.Content["msgtype"].(string)
	switch msgtype {
	case messaging.MsgTypeText:
		return KindText, body
	case messaging.MsgTypeImage, messaging.MsgTypeVideo:
		kind := KindImage
		if msgtype == messaging.MsgTypeVideo {
			kind = KindVideo
		}
		if _, hasFilename := event.Content["filename"].(string); hasFilename {
			return kind, body
		}
		return kind, ""
	default:
		return KindOther, ""
	}
}
