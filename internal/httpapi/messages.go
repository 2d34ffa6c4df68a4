package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/permission"
	"github.com/iohzrd/echora/internal/store"
)

const defaultMessagePageSize = 50

func (s *Server) handleListMessages(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}

	limit := defaultMessagePageSize
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var before *int64
	if raw := c.QueryParam("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &n
		}
	}

	messages, err := s.store.GetMessages(c.Request().Context(), channelID, limit, before, claims.Sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

type createMessageRequest struct {
	Content       string      `json:"content"`
	ReplyToID     *uuid.UUID  `json:"reply_to_id"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids"`
}

func (s *Server) handleCreateMessage(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	if s.hub.IsMutedCached(claims.Sub) {
		return apperror.Forbiddenf("You are muted")
	}

	var req createMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}

	result, err := s.pipeline.CreateMessage(c.Request().Context(), messageParams(claims, channelID, req))
	if err != nil {
		return err
	}
	s.hub.BroadcastChannel(channelID, "message", result.Message)
	return c.JSON(http.StatusCreated, result.Message)
}

func messageParams(claims *auth.Claims, channelID uuid.UUID, req createMessageRequest) message.CreateParams {
	return message.CreateParams{
		UserID: claims.Sub, Username: claims.Username, ChannelID: channelID,
		Content: req.Content, ReplyToID: req.ReplyToID, AttachmentIDs: req.AttachmentIDs,
		// REST creation validates cross-channel replies strictly; only
		// the WS path drops the preview silently instead of rejecting.
		ValidateReplyChannel: true,
	}
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditMessage(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	messageID, err := uuid.Parse(c.Param("mid"))
	if err != nil {
		return apperror.BadRequestf("invalid message id")
	}

	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}

	msg, err := s.pipeline.EditMessage(c.Request().Context(), messageID, claims.Sub, req.Content)
	if err != nil {
		return err
	}
	s.hub.BroadcastChannel(channelID, "message_edited", msg)
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	messageID, err := uuid.Parse(c.Param("mid"))
	if err != nil {
		return apperror.BadRequestf("invalid message id")
	}

	ctx := c.Request().Context()
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != claims.Sub {
		if err := permission.RequireRole(claims.Role, store.RoleModerator); err != nil {
			return apperror.Forbiddenf("You can only delete your own messages")
		}
	}

	if err := s.pipeline.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.hub.BroadcastChannel(channelID, "message_deleted", map[string]any{"message_id": messageID})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddReaction(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	messageID, err := uuid.Parse(c.Param("mid"))
	if err != nil {
		return apperror.BadRequestf("invalid message id")
	}
	emoji := c.Param("emoji")
	if emoji == "" {
		return apperror.BadRequestf("emoji is required")
	}

	ctx := c.Request().Context()
	now := time.Now().Unix()
	if err := s.store.AddReaction(ctx, messageID, claims.Sub, emoji, now); err != nil {
		return err
	}
	s.hub.BroadcastChannel(channelID, "reaction_added", map[string]any{
		"message_id": messageID, "user_id": claims.Sub, "emoji": emoji,
	})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRemoveReaction(c echo.Context) error {
	claims := auth.FromContext(c)
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid channel id")
	}
	messageID, err := uuid.Parse(c.Param("mid"))
	if err != nil {
		return apperror.BadRequestf("invalid message id")
	}
	emoji := c.Param("emoji")
	if emoji == "" {
		return apperror.BadRequestf("emoji is required")
	}

	if err := s.store.RemoveReaction(c.Request().Context(), messageID, claims.Sub, emoji); err != nil {
		return err
	}
	s.hub.BroadcastChannel(channelID, "reaction_removed", map[string]any{
		"message_id": messageID, "user_id": claims.Sub, "emoji": emoji,
	})
	return c.NoContent(http.StatusNoContent)
}
