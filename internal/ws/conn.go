package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

// connection serves one authenticated socket: a reader goroutine
// feeding inbound frames into a channel, and this goroutine as the
// single writer, selecting over inbound frames, the subscribed
// channel plane, the global plane, and a keepalive tick. Only this
// goroutine ever calls conn.WriteJSON.
type connection struct {
	conn     *websocket.Conn
	hub      *state.Hub
	store    *store.Store
	pipeline *message.Pipeline
	sfu      *sfu.Service
	user     *store.User
	presence *state.UserPresence

	channelID    *uuid.UUID
	channelCh    <-chan state.Event
	channelLag   <-chan struct{}
	channelUnsub func()
}

func newConnection(conn *websocket.Conn, hub *state.Hub, st *store.Store, pipeline *message.Pipeline, sfuSvc *sfu.Service, user *store.User) *connection {
	return &connection{
		conn:     conn,
		hub:      hub,
		store:    st,
		pipeline: pipeline,
		sfu:      sfuSvc,
		user:     user,
		presence: &state.UserPresence{
			UserID:      user.ID,
			Username:    user.Username,
			AvatarURL:   store.AvatarURLFromPath(user.ID, user.AvatarPath),
			ConnectedAt: time.Now().Unix(),
		},
	}
}

func (cn *connection) serve() {
	defer cn.conn.Close()
	cn.conn.SetReadLimit(readLimitBytes)

	firstSocket := cn.hub.UserConnected(cn.presence)
	if firstSocket {
		cn.hub.BroadcastGlobal("user_online", cn.presence)
	}
	defer cn.disconnect()

	globalCh, globalLag, globalUnsub := cn.hub.SubscribeGlobal()
	defer globalUnsub()
	defer cn.unsubscribeChannel()

	inbound := make(chan ClientFrame, inboundBuffer)
	done := make(chan struct{})
	go cn.readLoop(inbound, done)

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-done:
			return

		case frame, ok := <-inbound:
			if !ok {
				return
			}
			cn.handleFrame(frame)

		case ev := <-globalCh:
			if cn.shouldTerminateOn(ev) {
				_ = cn.writeEvent(ev)
				return
			}
			if err := cn.writeEvent(ev); err != nil {
				return
			}

		case <-globalLag:
			if err := cn.writeEvent(state.Event{Type: eventSyncRequired, Data: map[string]string{"reason": "lagged"}}); err != nil {
				return
			}

		case ev, ok := <-cn.channelCh:
			if !ok {
				// Plane was swapped out from under us; select will
				// pick up the new (possibly nil) channel next pass.
				continue
			}
			if err := cn.writeEvent(ev); err != nil {
				return
			}

		case <-cn.channelLag:
			if err := cn.writeEvent(state.Event{Type: eventSyncRequired, Data: map[string]string{"reason": "lagged"}}); err != nil {
				return
			}

		case <-keepalive.C:
			_ = cn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shouldTerminateOn reports whether a global moderation event targets
// this connection's user, meaning the socket should relay the event
// once and then close rather than keep serving a kicked/banned user.
func (cn *connection) shouldTerminateOn(ev state.Event) bool {
	if ev.Type != "user_kicked" && ev.Type != "user_banned" {
		return false
	}
	data, ok := ev.Data.(map[string]any)
	if !ok {
		return false
	}
	targetID, ok := data["user_id"].(uuid.UUID)
	if !ok {
		return false
	}
	return targetID == cn.user.ID
}

func (cn *connection) readLoop(inbound chan<- ClientFrame, done chan struct{}) {
	defer close(done)
	for {
		var frame ClientFrame
		if err := cn.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws unexpected close", "user_id", cn.user.ID, "err", err)
			}
			return
		}
		select {
		case inbound <- frame:
		case <-done:
			return
		}
	}
}

func (cn *connection) writeEvent(ev state.Event) error {
	_ = cn.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cn.conn.WriteJSON(ev)
}

func (cn *connection) resubscribe(channelID uuid.UUID) {
	cn.unsubscribeChannel()
	ch, lag, unsub := cn.hub.SubscribeChannel(channelID)
	cn.channelID = &channelID
	cn.channelCh = ch
	cn.channelLag = lag
	cn.channelUnsub = unsub
}

func (cn *connection) unsubscribeChannel() {
	if cn.channelUnsub != nil {
		cn.channelUnsub()
	}
	cn.channelID = nil
	cn.channelCh = nil
	cn.channelLag = nil
	cn.channelUnsub = nil
}

func (cn *connection) handleFrame(frame ClientFrame) {
	switch frame.MessageType {
	case frameMessage:
		cn.handleMessage(frame)
	case frameJoin:
		if frame.ChannelID != nil {
			cn.resubscribe(*frame.ChannelID)
		}
	case frameLeave:
		cn.unsubscribeChannel()
	case frameTyping:
		if frame.ChannelID != nil {
			cn.hub.BroadcastChannel(*frame.ChannelID, "typing", map[string]any{
				"user_id": cn.user.ID, "channel_id": *frame.ChannelID,
			})
		}
	case frameVoiceStateUpdate:
		cn.handleVoiceStateUpdate(frame)
	case frameVoiceSpeaking:
		if frame.ChannelID != nil && frame.Speaking != nil {
			cn.hub.BroadcastChannel(*frame.ChannelID, "voice_speaking", map[string]any{
				"user_id": cn.user.ID, "channel_id": *frame.ChannelID, "speaking": *frame.Speaking,
			})
		}
	case frameScreenShareUpdate:
		cn.handleFlagUpdate(frame, "screen_share_updated", func(vs state.VoiceState) state.VoiceState {
			if frame.Sharing != nil {
				vs.IsScreenSharing = *frame.Sharing
			}
			return vs
		})
	case frameCameraUpdate:
		cn.handleFlagUpdate(frame, "camera_updated", func(vs state.VoiceState) state.VoiceState {
			if frame.Sharing != nil {
				vs.IsCameraSharing = *frame.Sharing
			}
			return vs
		})
	case framePing:
		_ = cn.writeEvent(state.Event{Type: eventPong})
	default:
		_ = cn.writeEvent(state.Event{Type: eventError, Data: "unsupported message_type"})
	}
}

func (cn *connection) handleMessage(frame ClientFrame) {
	if frame.ChannelID == nil {
		return
	}
	if cn.hub.IsMutedCached(cn.user.ID) {
		return
	}
	if !cn.hub.CheckMessageRateLimit(cn.user.ID) {
		return
	}
	if cn.channelID == nil || *cn.channelID != *frame.ChannelID {
		cn.resubscribe(*frame.ChannelID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := cn.pipeline.CreateMessage(ctx, message.CreateParams{
		UserID:               cn.user.ID,
		Username:             cn.user.Username,
		ChannelID:            *frame.ChannelID,
		Content:              frame.Content,
		ReplyToID:            frame.ReplyToID,
		AttachmentIDs:        frame.AttachmentIDs,
		ValidateReplyChannel: false,
	})
	if err != nil {
		log.Debug("ws create message failed", "user_id", cn.user.ID, "channel_id", *frame.ChannelID, "err", err)
		_ = cn.writeEvent(state.Event{Type: eventError, Data: err.Error()})
		return
	}
	cn.hub.BroadcastChannel(result.ChannelID, "message", result.Message)
}

func (cn *connection) handleVoiceStateUpdate(frame ClientFrame) {
	if frame.ChannelID == nil {
		return
	}
	channelID := *frame.ChannelID

	existing, alreadyJoined := cn.hub.FindVoiceState(cn.user.ID)
	vs := &state.VoiceState{
		UserID:    cn.user.ID,
		Username:  cn.user.Username,
		AvatarURL: cn.presence.AvatarURL,
		ChannelID: channelID,
		SessionID: uuid.NewString(),
		JoinedAt:  time.Now().Unix(),
	}
	if alreadyJoined && existing.ChannelID == channelID {
		vs.SessionID = existing.SessionID
		vs.JoinedAt = existing.JoinedAt
		vs.IsScreenSharing = existing.IsScreenSharing
		vs.IsCameraSharing = existing.IsCameraSharing
	}
	if frame.Muted != nil {
		vs.IsMuted = *frame.Muted
	} else if alreadyJoined {
		vs.IsMuted = existing.IsMuted
	}
	if frame.Deafened != nil {
		vs.IsDeafened = *frame.Deafened
	} else if alreadyJoined {
		vs.IsDeafened = existing.IsDeafened
	}

	evicted := cn.hub.JoinVoice(channelID, vs)
	for _, evictedChannel := range evicted {
		cn.sfu.CloseUserConnections(evictedChannel, cn.user.ID)
		cn.hub.BroadcastChannel(evictedChannel, "voice_user_left", map[string]any{
			"user_id": cn.user.ID, "channel_id": evictedChannel,
		})
	}

	eventType := "voice_state_updated"
	if !alreadyJoined || existing.ChannelID != channelID {
		eventType = "voice_user_joined"
	}
	cn.hub.BroadcastChannel(channelID, eventType, vs)
}

func (cn *connection) handleFlagUpdate(frame ClientFrame, eventType string, mutate func(state.VoiceState) state.VoiceState) {
	if frame.ChannelID == nil {
		return
	}
	vs, ok := cn.hub.UpdateVoiceFlags(*frame.ChannelID, cn.user.ID, mutate)
	if !ok {
		return
	}
	cn.hub.BroadcastChannel(*frame.ChannelID, eventType, vs)
}

func (cn *connection) disconnect() {
	evicted := cn.hub.RemoveUserFromVoice(cn.user.ID)
	for _, channelID := range evicted {
		cn.sfu.CloseUserConnections(channelID, cn.user.ID)
		cn.hub.BroadcastChannel(channelID, "voice_user_left", map[string]any{
			"user_id": cn.user.ID, "channel_id": channelID,
		})
	}
	if cn.hub.UserDisconnected(cn.user.ID) {
		cn.hub.BroadcastGlobal("user_offline", map[string]any{"user_id": cn.user.ID})
	}
}
