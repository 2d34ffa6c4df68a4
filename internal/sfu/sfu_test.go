package sfu

import (
	"testing"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/state"
)

func TestCreateAndCloseTransport(t *testing.T) {
	hub := state.New()
	svc := NewService(hub, "127.0.0.1")

	channelID, _ := uuid.NewV7()
	userID, _ := uuid.NewV7()

	conn, err := svc.CreateTransport(channelID, userID)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	if _, _, err := svc.CloseConnection(channelID, conn.TransportID); err != nil {
		t.Fatalf("CloseConnection: %v", err)
	}
	if _, _, err := svc.CloseConnection(channelID, conn.TransportID); err == nil {
		t.Fatal("expected error closing an already-closed transport")
	}
}

func TestCloseUserConnectionsIsIdempotent(t *testing.T) {
	hub := state.New()
	svc := NewService(hub, "127.0.0.1")

	channelID, _ := uuid.NewV7()
	userID, _ := uuid.NewV7()

	if _, err := svc.CreateTransport(channelID, userID); err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	svc.CloseUserConnections(channelID, userID)
	svc.CloseUserConnections(channelID, userID) // must not panic
}

func TestGetRouterCapabilitiesIncludesOpusAndVP8(t *testing.T) {
	hub := state.New()
	svc := NewService(hub, "127.0.0.1")
	channelID, _ := uuid.NewV7()

	caps := svc.GetRouterCapabilities(channelID)
	if len(caps.Codecs) != 2 {
		t.Fatalf("codecs: got %d, want 2", len(caps.Codecs))
	}
}
