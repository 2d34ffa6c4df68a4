package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

type initBundle struct {
	ServerName  string                            `json:"server_name"`
	Channels    []store.Channel                   `json:"channels"`
	OnlineUsers []state.UserPresence               `json:"online_users"`
	VoiceStates map[uuid.UUID][]state.VoiceState   `json:"voice_states"`
	Members     []store.UserSummary                `json:"members"`
}

// handleInit returns everything a freshly connecting client needs to
// render its initial view in one round trip, instead of one request
// per channel/presence/member list.
func (s *Server) handleInit(c echo.Context) error {
	ctx := c.Request().Context()

	serverName, err := s.store.GetSetting(ctx, "server_name")
	if err != nil {
		serverName = "Echora"
	}
	channels, err := s.store.GetChannels(ctx)
	if err != nil {
		return err
	}
	members, err := s.store.GetAllUsers(ctx)
	if err != nil {
		return err
	}

	voiceStates := make(map[uuid.UUID][]state.VoiceState)
	for _, ch := range channels {
		if ch.ChannelType != store.ChannelVoice {
			continue
		}
		if vs := s.hub.VoiceStatesForChannel(ch.ID); len(vs) > 0 {
			voiceStates[ch.ID] = vs
		}
	}

	return c.JSON(http.StatusOK, initBundle{
		ServerName:  serverName,
		Channels:    channels,
		OnlineUsers: s.hub.OnlineUsers(),
		VoiceStates: voiceStates,
		Members:     members,
	})
}
