package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/store"
)

func (s *Server) targetUserIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return uuid.Nil, apperror.BadRequestf("invalid user id")
	}
	return id, nil
}

type reasonRequest struct {
	Reason    *string `json:"reason"`
	ExpiresAt *int64  `json:"expires_at"`
}

func (s *Server) handleKick(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	_ = c.Bind(&req)
	if err := s.moderation.Kick(c.Request().Context(), claims.Sub, targetID, req.Reason); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleBan(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	_ = c.Bind(&req)
	if err := s.moderation.Ban(c.Request().Context(), claims.Sub, targetID, req.Reason, req.ExpiresAt); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnban(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	if err := s.moderation.Unban(c.Request().Context(), claims.Sub, targetID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMute(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	_ = c.Bind(&req)
	if err := s.moderation.Mute(c.Request().Context(), claims.Sub, targetID, req.Reason, req.ExpiresAt); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnmute(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	if err := s.moderation.Unmute(c.Request().Context(), claims.Sub, targetID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type changeRoleRequest struct {
	Role store.Role `json:"role"`
}

func (s *Server) handleChangeRole(c echo.Context) error {
	claims := auth.FromContext(c)
	targetID, err := s.targetUserIDParam(c)
	if err != nil {
		return err
	}
	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	if err := s.moderation.ChangeRole(c.Request().Context(), claims.Sub, targetID, req.Role); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleModLog(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.GetModLog(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
