package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/permission"
	"github.com/iohzrd/echora/internal/store"
	"github.com/iohzrd/echora/internal/validation"
)

func (s *Server) handleListChannels(c echo.Context) error {
	channels, err := s.store.GetChannels(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, channels)
}

type createChannelRequest struct {
	Name        string `json:"name"`
	ChannelType string `json:"channel_type"`
}

func (s *Server) handleCreateChannel(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}

	var req createChannelRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	name, err := validation.ValidateChannelName(req.Name)
	if err != nil {
		return apperror.BadRequestf("%v", err)
	}
	ctype := store.ChannelText
	if req.ChannelType == string(store.ChannelVoice) {
		ctype = store.ChannelVoice
	}

	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate channel id")
	}
	ch := &store.Channel{ID: id, Name: name, ChannelType: ctype, CreatedBy: &claims.Sub, CreatedAt: time.Now().Unix()}
	if err := s.store.CreateChannel(c.Request().Context(), ch); err != nil {
		return err
	}
	s.hub.BroadcastGlobal("channel_created", ch)
	return c.JSON(http.StatusCreated, ch)
}

type updateChannelRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpdateChannel(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	var req updateChannelRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	name, err := validation.ValidateChannelName(req.Name)
	if err != nil {
		return apperror.BadRequestf("%v", err)
	}
	if err := s.store.UpdateChannel(c.Request().Context(), id, name); err != nil {
		return err
	}
	s.hub.BroadcastGlobal("channel_updated", map[string]any{"channel_id": id, "name": name})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteChannel(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	if err := s.store.DeleteChannel(c.Request().Context(), id); err != nil {
		return err
	}
	s.hub.BroadcastGlobal("channel_deleted", map[string]any{"channel_id": id})
	return c.NoContent(http.StatusNoContent)
}
