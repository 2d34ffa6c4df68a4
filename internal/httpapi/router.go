// Package httpapi wires every REST route to the component packages:
// thin handlers that parse the request, delegate to a service or the
// store directly, and respond with JSON via a shared jsonErrorHandler,
// covering the full route table a persistent-channel, threaded,
// voice-enabled chat server needs.
package httpapi

import (
	"net/http"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/imageproxy"
	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/media"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/moderation"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

var log = logging.New("httpapi")

// Server holds every dependency a route handler needs.
type Server struct {
	store      *store.Store
	hub        *state.Hub
	issuer     *auth.Issuer
	webauthn   *webauthn.WebAuthn
	pipeline   *message.Pipeline
	moderation *moderation.Service
	media      *media.Service
	sfu        *sfu.Service
	imageProxy *imageproxy.Handler
	hmacSecret string
}

type Deps struct {
	Store      *store.Store
	Hub        *state.Hub
	Issuer     *auth.Issuer
	WebAuthn   *webauthn.WebAuthn
	Pipeline   *message.Pipeline
	Moderation *moderation.Service
	Media      *media.Service
	SFU        *sfu.Service
	ImageProxy *imageproxy.Handler
	HMACSecret string
}

func New(d Deps) *Server {
	return &Server{
		store:      d.Store,
		hub:        d.Hub,
		issuer:     d.Issuer,
		webauthn:   d.WebAuthn,
		pipeline:   d.Pipeline,
		moderation: d.Moderation,
		media:      d.Media,
		sfu:        d.SFU,
		imageProxy: d.ImageProxy,
		hmacSecret: d.HMACSecret,
	}
}

// Register binds every REST route on e. Routes requiring a session
// sit behind auth.Middleware; everything else is public.
func (s *Server) Register(e *echo.Echo) {
	e.HTTPErrorHandler = jsonErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/api/proxy/image", s.imageProxy.Handle)

	e.POST("/api/auth/register", s.handleRegister)
	e.POST("/api/auth/login", s.handleLogin)
	e.POST("/api/auth/passkey/register/begin", s.handlePasskeyRegisterBegin, auth.Middleware(s.issuer))
	e.POST("/api/auth/passkey/register/finish", s.handlePasskeyRegisterFinish, auth.Middleware(s.issuer))
	e.POST("/api/auth/passkey/login/begin", s.handlePasskeyLoginBegin)
	e.POST("/api/auth/passkey/login/finish", s.handlePasskeyLoginFinish)

	authed := e.Group("", auth.Middleware(s.issuer))

	authed.GET("/api/auth/me", s.handleGetMe)
	authed.PUT("/api/auth/me", s.handleUpdateMe)
	authed.POST("/api/auth/password", s.handleChangePassword)

	authed.GET("/api/init", s.handleInit)

	authed.GET("/api/channels", s.handleListChannels)
	authed.POST("/api/channels", s.handleCreateChannel)
	authed.PUT("/api/channels/:id", s.handleUpdateChannel)
	authed.DELETE("/api/channels/:id", s.handleDeleteChannel)

	authed.GET("/api/channels/:id/messages", s.handleListMessages)
	authed.POST("/api/channels/:id/messages", s.handleCreateMessage)
	authed.PUT("/api/channels/:id/messages/:mid", s.handleEditMessage)
	authed.DELETE("/api/channels/:id/messages/:mid", s.handleDeleteMessage)
	authed.PUT("/api/channels/:id/messages/:mid/reactions/:emoji", s.handleAddReaction)
	authed.DELETE("/api/channels/:id/messages/:mid/reactions/:emoji", s.handleRemoveReaction)

	authed.POST("/api/voice/join", s.handleVoiceJoin)
	authed.POST("/api/voice/leave", s.handleVoiceLeave)
	authed.GET("/api/voice/states", s.handleVoiceStates)

	authed.GET("/api/webrtc/:channelId/capabilities", s.handleWebRTCCapabilities)
	authed.POST("/api/webrtc/:channelId/transports", s.handleWebRTCCreateTransport)
	authed.POST("/api/webrtc/:channelId/transports/:transportId/offer", s.handleWebRTCOffer)
	authed.POST("/api/webrtc/:channelId/transports/:transportId/answer", s.handleWebRTCAnswer)
	authed.POST("/api/webrtc/:channelId/transports/:transportId/produce", s.handleWebRTCProduce)
	authed.POST("/api/webrtc/:channelId/transports/:transportId/consume", s.handleWebRTCConsume)
	authed.DELETE("/api/webrtc/:channelId/transports/:transportId", s.handleWebRTCCloseTransport)

	authed.POST("/api/admin/kick/:userId", s.handleKick)
	authed.POST("/api/admin/ban/:userId", s.handleBan)
	authed.DELETE("/api/admin/ban/:userId", s.handleUnban)
	authed.POST("/api/admin/mute/:userId", s.handleMute)
	authed.DELETE("/api/admin/mute/:userId", s.handleUnmute)
	authed.PUT("/api/admin/role/:userId", s.handleChangeRole)
	authed.GET("/api/admin/modlog", s.handleModLog)

	authed.GET("/api/invites", s.handleListInvites)
	authed.POST("/api/invites", s.handleCreateInvite)
	authed.DELETE("/api/invites/:id", s.handleRevokeInvite)
	e.GET("/api/invites/:code/validate", s.handleValidateInvite)

	authed.POST("/api/attachments", s.handleUploadAttachment)
	e.GET("/api/attachments/:id/:name", s.handleDownloadAttachment)

	authed.POST("/api/avatar", s.handleUploadAvatar)
	e.GET("/api/avatars/:id", s.handleGetAvatar)

	authed.GET("/api/emoji", s.handleListEmoji)
	authed.POST("/api/emoji", s.handleCreateEmoji)
	authed.DELETE("/api/emoji/:id", s.handleDeleteEmoji)
	e.GET("/api/emoji/:id/:name", s.handleGetEmoji)

	authed.GET("/api/soundboard", s.handleListSoundboard)
	authed.POST("/api/soundboard", s.handleCreateSoundboardSound)
	authed.DELETE("/api/soundboard/:id", s.handleDeleteSoundboardSound)
	authed.PUT("/api/soundboard/:id/favorite", s.handleFavoriteSound)
	authed.DELETE("/api/soundboard/:id/favorite", s.handleUnfavoriteSound)
	e.GET("/api/soundboard/:id/:name", s.handleGetSoundboardSound)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// jsonErrorHandler maps apperror.Error (and any plain error) to a
// {error} JSON body with the right status code, recognizing the
// domain error taxonomy instead of echo.HTTPError alone.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()

	if ae, ok := apperror.As(err); ok {
		code = ae.Status()
		msg = ae.Message
	} else if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
