package ws

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

type noopPreviewer struct{}

func (noopPreviewer) FetchAsync(uuid.UUID, uuid.UUID, string) {}

func startTestServer(t *testing.T) (*store.Store, *auth.Issuer, string) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := state.New()
	issuer := auth.NewIssuer("test-secret")
	pipeline := message.New(st, noopPreviewer{})
	sfuSvc := sfu.NewService(hub, "")

	e := echo.New()
	NewHandler(hub, issuer, st, pipeline, sfuSvc).Register(e)
	httpServer := httptest.NewServer(e)
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	return st, issuer, wsURL
}

func createTestUser(t *testing.T, st *store.Store, username string) *store.User {
	t.Helper()
	id, _ := uuid.NewV7()
	u := &store.User{
		ID: id, Username: username, Email: username + "@example.com",
		PasswordHash: "x", Role: store.RoleMember, CreatedAt: time.Now().Unix(),
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func createTestChannel(t *testing.T, st *store.Store) uuid.UUID {
	t.Helper()
	id, _ := uuid.NewV7()
	ch := &store.Channel{ID: id, Name: "general", ChannelType: store.ChannelText, CreatedAt: time.Now().Unix()}
	if err := st.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	return id
}

func connectClient(t *testing.T, baseWSURL string, issuer *auth.Issuer, user *store.User) *websocket.Conn {
	t.Helper()
	token, err := issuer.Create(user.ID, user.Username, user.Role)
	if err != nil {
		t.Fatalf("issuer.Create: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(baseWSURL+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(state.Event) bool) state.Event {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var ev state.Event
		err := conn.ReadJSON(&ev)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.Fatalf("connection closed unexpectedly: %v", err)
			}
			continue
		}
		if match(ev) {
			return ev
		}
	}
	t.Fatal("timed out waiting for matching event")
	return state.Event{}
}

func TestHandleUpgradeRejectsMissingToken(t *testing.T) {
	_, _, baseURL := startTestServer(t)
	conn, resp, err := websocket.DefaultDialer.Dial(baseURL+"/ws", nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected upgrade to be rejected without a token")
	}
	// The JSON status-mapping middleware for apperror.Error lives in
	// internal/httpapi; here we only confirm the handshake itself never
	// completes for a missing token.
	if resp != nil && resp.StatusCode == 101 {
		t.Fatalf("expected the handshake to fail, got a successful upgrade")
	}
}

func TestJoinThenMessageBroadcastsToSubscriber(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)

	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	aliceConn := connectClient(t, baseURL, issuer, alice)
	defer aliceConn.Close()
	bobConn := connectClient(t, baseURL, issuer, bob)
	defer bobConn.Close()

	writeFrame(t, aliceConn, ClientFrame{MessageType: frameJoin, ChannelID: &channelID})
	writeFrame(t, bobConn, ClientFrame{MessageType: frameMessage, ChannelID: &channelID, Content: "hello from bob"})

	ev := readUntil(t, aliceConn, func(ev state.Event) bool { return ev.Type == "message" })
	data, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected message payload: %#v", ev.Data)
	}
	if data["Content"] != "hello from bob" {
		t.Errorf("content: got %v", data["Content"])
	}
}

func TestPingReceivesPong(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	alice := createTestUser(t, st, "alice")

	conn := connectClient(t, baseURL, issuer, alice)
	defer conn.Close()

	writeFrame(t, conn, ClientFrame{MessageType: framePing})
	readUntil(t, conn, func(ev state.Event) bool { return ev.Type == eventPong })
}

func TestRateLimitExceededDropsExcessMessages(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)
	alice := createTestUser(t, st, "alice")

	conn := connectClient(t, baseURL, issuer, alice)
	defer conn.Close()

	writeFrame(t, conn, ClientFrame{MessageType: frameJoin, ChannelID: &channelID})

	// Token bucket capacity is 5; the 6th rapid send should be dropped
	// rather than broadcast.
	for i := 0; i < 5; i++ {
		writeFrame(t, conn, ClientFrame{MessageType: frameMessage, ChannelID: &channelID, Content: "msg"})
	}
	writeFrame(t, conn, ClientFrame{MessageType: frameMessage, ChannelID: &channelID, Content: "over-limit"})

	seen := 0
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		var ev state.Event
		if err := conn.ReadJSON(&ev); err != nil {
			continue
		}
		if ev.Type == "message" {
			seen++
		}
	}
	if seen != 5 {
		t.Errorf("expected exactly 5 broadcast messages within the rate limit, got %d", seen)
	}
}

func TestTypingFrameBroadcastsToChannelSubscribers(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	aliceConn := connectClient(t, baseURL, issuer, alice)
	defer aliceConn.Close()
	bobConn := connectClient(t, baseURL, issuer, bob)
	defer bobConn.Close()

	writeFrame(t, aliceConn, ClientFrame{MessageType: frameJoin, ChannelID: &channelID})
	writeFrame(t, bobConn, ClientFrame{MessageType: frameJoin, ChannelID: &channelID})
	writeFrame(t, bobConn, ClientFrame{MessageType: frameTyping, ChannelID: &channelID})

	readUntil(t, aliceConn, func(ev state.Event) bool { return ev.Type == "typing" })
}
