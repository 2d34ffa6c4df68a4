// Package ws implements the per-connection fan-out loop: one
// goroutine pair per authenticated socket, selecting over inbound
// client frames, per-channel broadcast, global broadcast, and an
// outbound keepalive tick. The upgrade is refused unless the token
// verifies and the user is not banned; there is no handshake after it.
// A reader goroutine then feeds decoded frames to the connection's
// select loop, which is the only writer and dispatches frames by
// message type.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

var log = logging.New("ws")

const (
	writeTimeout    = 5 * time.Second
	keepaliveEvery  = 30 * time.Second
	readLimitBytes  = 1 << 20
	inboundBuffer   = 32
)

// Handler owns the WebSocket upgrade and wires each connection to the
// shared state hub, message pipeline, and SFU service.
type Handler struct {
	hub      *state.Hub
	issuer   *auth.Issuer
	store    *store.Store
	pipeline *message.Pipeline
	sfu      *sfu.Service
	upgrader websocket.Upgrader
}

func NewHandler(hub *state.Hub, issuer *auth.Issuer, st *store.Store, pipeline *message.Pipeline, sfuSvc *sfu.Service) *Handler {
	return &Handler{
		hub:      hub,
		issuer:   issuer,
		store:    st,
		pipeline: pipeline,
		sfu:      sfuSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the upgrade route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleUpgrade)
}

// HandleUpgrade decodes and ban-checks the JWT before upgrading, per
// spec: a banned user's upgrade is refused outright rather than
// admitted and then dropped.
func (h *Handler) HandleUpgrade(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return apperror.Authenticationf("Missing token")
	}
	claims, err := h.issuer.Verify(token)
	if err != nil {
		return apperror.Authenticationf("Invalid or expired token")
	}
	if h.hub.IsBannedCached(claims.Sub) {
		return apperror.Forbiddenf("User is banned")
	}

	user, err := h.store.GetUserByID(c.Request().Context(), claims.Sub)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Debug("ws upgrade failed", "user_id", claims.Sub, "err", err)
		return nil
	}

	cn := newConnection(conn, h.hub, h.store, h.pipeline, h.sfu, user)
	cn.serve()
	return nil
}
