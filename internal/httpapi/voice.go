package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/state"
)

type voiceJoinRequest struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

func (s *Server) handleVoiceJoin(c echo.Context) error {
	claims := auth.FromContext(c)
	var req voiceJoinRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	if req.ChannelID == uuid.Nil {
		return apperror.BadRequestf("channel_id is required")
	}

	user, err := s.store.GetUserByID(c.Request().Context(), claims.Sub)
	if err != nil {
		return err
	}

	vs := &state.VoiceState{
		UserID:    user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		ChannelID: req.ChannelID,
		SessionID: uuid.NewString(),
		JoinedAt:  time.Now().Unix(),
	}
	evicted := s.hub.JoinVoice(req.ChannelID, vs)
	for _, channelID := range evicted {
		s.sfu.CloseUserConnections(channelID, user.ID)
		s.hub.BroadcastChannel(channelID, "voice_user_left", map[string]any{
			"user_id": user.ID, "channel_id": channelID,
		})
	}
	s.hub.BroadcastChannel(req.ChannelID, "voice_user_joined", vs)
	return c.JSON(http.StatusOK, vs)
}

func (s *Server) handleVoiceLeave(c echo.Context) error {
	claims := auth.FromContext(c)
	evicted := s.hub.RemoveUserFromVoice(claims.Sub)
	for _, channelID := range evicted {
		s.sfu.CloseUserConnections(channelID, claims.Sub)
		s.hub.BroadcastChannel(channelID, "voice_user_left", map[string]any{
			"user_id": claims.Sub, "channel_id": channelID,
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleVoiceStates(c echo.Context) error {
	channelID, err := uuid.Parse(c.QueryParam("channel_id"))
	if err != nil {
		return apperror.BadRequestf("channel_id is required")
	}
	return c.JSON(http.StatusOK, s.hub.VoiceStatesForChannel(channelID))
}

func (s *Server) channelIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		return uuid.Nil, apperror.BadRequestf("invalid channel id")
	}
	return id, nil
}

func (s *Server) transportIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("transportId"))
	if err != nil {
		return uuid.Nil, apperror.BadRequestf("invalid transport id")
	}
	return id, nil
}

func (s *Server) handleWebRTCCapabilities(c echo.Context) error {
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.sfu.GetRouterCapabilities(channelID))
}

func (s *Server) handleWebRTCCreateTransport(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	conn, err := s.sfu.CreateTransport(channelID, claims.Sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"transport_id": conn.TransportID})
}

func (s *Server) handleWebRTCOffer(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	transportID, err := s.transportIDParam(c)
	if err != nil {
		return err
	}
	offer, err := s.sfu.CreateOffer(channelID, claims.Sub, transportID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, offer)
}

type webrtcAnswerRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

func (s *Server) handleWebRTCAnswer(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	transportID, err := s.transportIDParam(c)
	if err != nil {
		return err
	}
	var req webrtcAnswerRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	answer := webrtc.SessionDescription{SDP: req.SDP, Type: webrtc.NewSDPType(req.Type)}
	if err := s.sfu.ConnectTransport(channelID, claims.Sub, transportID, answer); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type webrtcProduceRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleWebRTCProduce(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	transportID, err := s.transportIDParam(c)
	if err != nil {
		return err
	}
	var req webrtcProduceRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	producerID, err := s.sfu.Produce(s.hub, channelID, claims.Sub, transportID, req.Label)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"producer_id": producerID})
}

type webrtcConsumeRequest struct {
	ProducerID uuid.UUID `json:"producer_id"`
}

func (s *Server) handleWebRTCConsume(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	transportID, err := s.transportIDParam(c)
	if err != nil {
		return err
	}
	var req webrtcConsumeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	consumerID, err := s.sfu.Consume(channelID, claims.Sub, transportID, req.ProducerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"consumer_id": consumerID})
}

func (s *Server) handleWebRTCCloseTransport(c echo.Context) error {
	channelID, err := s.channelIDParam(c)
	if err != nil {
		return err
	}
	transportID, err := s.transportIDParam(c)
	if err != nil {
		return err
	}
	_, _, err = s.sfu.CloseConnection(channelID, transportID)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
