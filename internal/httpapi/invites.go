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
)

func (s *Server) handleListInvites(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}
	invites, err := s.store.GetAllInvites(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, invites)
}

type createInviteRequest struct {
	MaxUses   *int64 `json:"max_uses"`
	ExpiresAt *int64 `json:"expires_at"`
}

func (s *Server) handleCreateInvite(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}
	var req createInviteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	inv, err := s.moderation.CreateInvite(c.Request().Context(), claims.Sub, req.MaxUses, req.ExpiresAt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (s *Server) handleRevokeInvite(c echo.Context) error {
	claims := auth.FromContext(c)
	if err := permission.RequireRole(claims.Role, store.RoleAdmin); err != nil {
		return apperror.Forbiddenf("%v", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid invite id")
	}
	if err := s.store.RevokeInvite(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleValidateInvite never returns 404 for an unknown code -- it
// reports validity in the body so clients can render a friendly
// "this invite isn't valid" state instead of a generic error page.
func (s *Server) handleValidateInvite(c echo.Context) error {
	code := c.Param("code")
	inv, err := s.store.GetInviteByCode(c.Request().Context(), code)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"valid": false})
	}
	now := time.Now().Unix()
	valid := !inv.Revoked && (inv.ExpiresAt == nil || now < *inv.ExpiresAt) &&
		(inv.MaxUses == nil || inv.Uses < *inv.MaxUses)
	return c.JSON(http.StatusOK, map[string]any{"valid": valid})
}
