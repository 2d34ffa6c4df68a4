package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
)

func (s *Server) handleUploadAttachment(c echo.Context) error {
	claims := auth.FromContext(c)
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.BadRequestf("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Internalf(err, "open uploaded file")
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	a, err := s.media.UploadAttachment(c.Request().Context(), claims.Sub, fh.Filename, contentType, fh.Size, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) handleDownloadAttachment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid attachment id")
	}
	a, r, err := s.media.OpenAttachment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer r.Close()
	return c.Stream(http.StatusOK, a.ContentType, r)
}

func (s *Server) handleUploadAvatar(c echo.Context) error {
	claims := auth.FromContext(c)
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.BadRequestf("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Internalf(err, "open uploaded file")
	}
	defer f.Close()

	diskName, err := s.media.UploadAvatar(c.Request().Context(), claims.Sub, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		return err
	}
	s.hub.BroadcastGlobal("user_avatar_updated", map[string]any{"user_id": claims.Sub, "avatar": diskName})
	return c.JSON(http.StatusOK, map[string]string{"avatar": diskName})
}

func (s *Server) handleGetAvatar(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid user id")
	}
	r, err := s.media.OpenAvatar(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer r.Close()
	return c.Stream(http.StatusOK, "application/octet-stream", r)
}

func (s *Server) handleListEmoji(c echo.Context) error {
	emoji, err := s.store.GetCustomEmojis(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, emoji)
}

func (s *Server) handleCreateEmoji(c echo.Context) error {
	claims := auth.FromContext(c)
	name := c.FormValue("name")
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.BadRequestf("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Internalf(err, "open uploaded file")
	}
	defer f.Close()

	e, err := s.media.CreateCustomEmoji(c.Request().Context(), claims.Sub, name, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		return err
	}
	s.hub.BroadcastGlobal("emoji_created", e)
	return c.JSON(http.StatusCreated, e)
}

func (s *Server) handleDeleteEmoji(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid emoji id")
	}
	if err := s.store.DeleteCustomEmoji(c.Request().Context(), id); err != nil {
		return err
	}
	s.hub.BroadcastGlobal("emoji_deleted", map[string]any{"emoji_id": id})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetEmoji(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid emoji id")
	}
	e, r, err := s.media.OpenCustomEmoji(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer r.Close()
	return c.Stream(http.StatusOK, e.ContentType, r)
}

func (s *Server) handleListSoundboard(c echo.Context) error {
	claims := auth.FromContext(c)
	ctx := c.Request().Context()
	sounds, err := s.store.GetSoundboardSounds(ctx)
	if err != nil {
		return err
	}
	favorites, err := s.store.GetSoundboardFavorites(ctx, claims.Sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"sounds": sounds, "favorites": favorites})
}

func (s *Server) handleCreateSoundboardSound(c echo.Context) error {
	claims := auth.FromContext(c)
	name := c.FormValue("name")
	durationMS, _ := strconv.ParseInt(c.FormValue("duration_ms"), 10, 64)
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.BadRequestf("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Internalf(err, "open uploaded file")
	}
	defer f.Close()

	snd, err := s.media.CreateSoundboardSound(c.Request().Context(), claims.Sub, name, durationMS, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		return err
	}
	s.hub.BroadcastGlobal("soundboard_sound_created", snd)
	return c.JSON(http.StatusCreated, snd)
}

func (s *Server) handleDeleteSoundboardSound(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid sound id")
	}
	if err := s.store.DeleteSoundboardSound(c.Request().Context(), id); err != nil {
		return err
	}
	s.hub.BroadcastGlobal("soundboard_sound_deleted", map[string]any{"sound_id": id})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleFavoriteSound(c echo.Context) error {
	claims := auth.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid sound id")
	}
	if err := s.store.AddSoundboardFavorite(c.Request().Context(), claims.Sub, id, unixNow()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnfavoriteSound(c echo.Context) error {
	claims := auth.FromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid sound id")
	}
	if err := s.store.RemoveSoundboardFavorite(c.Request().Context(), claims.Sub, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetSoundboardSound(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequestf("invalid sound id")
	}
	_, r, err := s.media.OpenSoundboardSound(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer r.Close()
	return c.Stream(http.StatusOK, "application/octet-stream", r)
}

func unixNow() int64 { return time.Now().Unix() }
