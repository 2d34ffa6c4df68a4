package ws

import "github.com/google/uuid"

// Client→server frame types, per the WebSocket envelope contract.
const (
	frameMessage           = "message"
	frameJoin              = "join"
	frameLeave             = "leave"
	frameTyping            = "typing"
	frameVoiceStateUpdate  = "voice_state_update"
	frameVoiceSpeaking     = "voice_speaking"
	frameScreenShareUpdate = "screen_share_update"
	frameCameraUpdate      = "camera_update"
	framePing              = "ping"
)

// ClientFrame is the inbound {message_type, ...} envelope. Every field
// beyond MessageType is optional and interpreted per frame type.
type ClientFrame struct {
	MessageType   string      `json:"message_type"`
	ChannelID     *uuid.UUID  `json:"channel_id,omitempty"`
	Content       string      `json:"content,omitempty"`
	ReplyToID     *uuid.UUID  `json:"reply_to_id,omitempty"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`
	Muted         *bool       `json:"muted,omitempty"`
	Deafened      *bool       `json:"deafened,omitempty"`
	Sharing       *bool       `json:"sharing,omitempty"`
	Speaking      *bool       `json:"speaking,omitempty"`
}

// Server→client event types, beyond those mirrored straight from
// internal/state.Hub broadcasts and internal/moderation.
const (
	eventSyncRequired = "sync_required"
	eventPong         = "pong"
	eventError        = "error"
)
