// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/davinto-labs/davinto/lib/secret"
)

// RegisterRequest holds the parameters for pairing a new account via
// token-authenticated registration. Password and PairingToken live in
// mmap-backed buffers (locked against swap, excluded from core dumps).
// The caller retains ownership — Register reads them but does not
// close them.
type RegisterRequest struct {
	Username     string
	Password     *secret.Buffer
	PairingToken *secret.Buffer
}

// AuthResponse is returned by the register and login endpoints.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// Message types carried in MessageContent.MsgType. m.sticker is an
// event type of its own (EventTypeSticker), not a msgtype.
const (
	MsgTypeText  = "m.text"
	MsgTypeImage = "m.image"
	MsgTypeVideo = "m.video"
)

// Event types the bot sends and consumes.
const (
	EventTypeMessage = "m.room.message"
	EventTypeSticker = "m.sticker"
	EventTypeMember  = "m.room.member"
)

// MessageContent is the content body of a message event.
//
// For media messages, URL is the mxc:// URI and Filename carries the
// upload's file name. When Filename is set, Body is the caption; a
// media message without Filename has no caption and Body repeats the
// file name, per the captions convention.
type MessageContent struct {
	MsgType   string     `json:"msgtype,omitempty"`
	Body      string     `json:"body"`
	URL       string     `json:"url,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	Info      *MediaInfo `json:"info,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// MediaInfo describes an uploaded media file.
type MediaInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
}

// RelatesTo expresses relationships between events. The bot uses only
// the rich-reply relation: InReplyTo pointing at the quoted event.
type RelatesTo struct {
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event being quoted.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// NewReply creates a text message quoting an existing event.
func NewReply(body, quotedEventID string) MessageContent {
	content := NewTextMessage(body)
	if quotedEventID != "" {
		content.RelatesTo = &RelatesTo{InReplyTo: &InReplyTo{EventID: quotedEventID}}
	}
	return content
}

// NewMediaMessage creates an image or video message. caption may be
// empty, in which case body carries the file name and the message has
// no caption.
func NewMediaMessage(msgType, mxcURI, filename, caption string, info *MediaInfo) MessageContent {
	content := MessageContent{
		MsgType:  msgType,
		Body:     filename,
		URL:      mxcURI,
		Filename: filename,
		Info:     info,
	}
	if caption != "" {
		content.Body = caption
	}
	return content
}

// NewSticker creates the content for an m.sticker event. Stickers
// have no msgtype; Body is the sticker's alt text.
func NewSticker(mxcURI, description string, info *MediaInfo) MessageContent {
	return MessageContent{
		Body: description,
		URL:  mxcURI,
		Info: info,
	}
}

// Event is a single event from the server.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         string         `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// SyncOptions controls the /sync endpoint.
type SyncOptions struct {
	// Since is the next_batch token of the previous sync; empty for
	// the initial sync.
	Since string
	// Timeout is the long-poll wait in milliseconds. SetTimeout
	// distinguishes an explicit 0 from "not set".
	Timeout    int
	SetTimeout bool
	// Filter is a filter ID or inline JSON filter.
	Filter string
}

// SyncResponse is the top-level /sync response.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership state.
type RoomsSection struct {
	Join   map[string]JoinedRoom  `json:"join,omitempty"`
	Invite map[string]InvitedRoom `json:"invite,omitempty"`
	Leave  map[string]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom holds sync data for a room the bot is in.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
	Summary  RoomSummary     `json:"summary"`
}

// InvitedRoom holds sync data for a pending invite.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom holds sync data for a room the bot has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection holds new timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection holds state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// RoomSummary carries the server's member-count hints for a room.
type RoomSummary struct {
	JoinedMemberCount int `json:"m.joined_member_count,omitempty"`
}

// SendEventResponse is returned by SendMessage and SendEvent.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// RoomMember is one member of a room.
type RoomMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Membership  string `json:"membership"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   string            `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// DisplayNameResponse is returned by the profile displayname endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
