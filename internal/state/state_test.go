package state

import (
	"testing"

	"github.com/google/uuid"
)

func TestJoinVoiceEvictsPriorChannel(t *testing.T) {
	h := New()
	userID, _ := uuid.NewV7()
	chanA, _ := uuid.NewV7()
	chanB, _ := uuid.NewV7()

	h.JoinVoice(chanA, &VoiceState{UserID: userID, ChannelID: chanA})
	evicted := h.JoinVoice(chanB, &VoiceState{UserID: userID, ChannelID: chanB})

	if len(evicted) != 1 || evicted[0] != chanA {
		t.Fatalf("evicted: got %v, want [chanA]", evicted)
	}
	if len(h.VoiceStatesForChannel(chanA)) != 0 {
		t.Error("expected chanA to be empty after eviction")
	}
	if len(h.VoiceStatesForChannel(chanB)) != 1 {
		t.Error("expected user present in chanB")
	}
}

func TestCheckMessageRateLimitEnforcesCapacity(t *testing.T) {
	h := New()
	userID, _ := uuid.NewV7()

	for i := 0; i < 5; i++ {
		if !h.CheckMessageRateLimit(userID) {
			t.Fatalf("expected token %d to be allowed", i)
		}
	}
	if h.CheckMessageRateLimit(userID) {
		t.Fatal("expected 6th immediate message to be rate-limited")
	}
}

func TestBroadcastChannelNoopWithoutSubscribers(t *testing.T) {
	h := New()
	chanID, _ := uuid.NewV7()
	h.BroadcastChannel(chanID, "message", map[string]string{"x": "y"})
}

func TestSubscribeChannelReceivesPublishedEvent(t *testing.T) {
	h := New()
	chanID, _ := uuid.NewV7()
	ch, _, cancel := h.SubscribeChannel(chanID)
	defer cancel()

	h.BroadcastChannel(chanID, "message", "hello")
	ev := <-ch
	if ev.Type != "message" {
		t.Errorf("type: got %q, want %q", ev.Type, "message")
	}
}

func TestSubscribeChannelSignalsLagOnOverflow(t *testing.T) {
	h := New()
	chanID, _ := uuid.NewV7()
	ch, lagged, cancel := h.SubscribeChannel(chanID)
	defer cancel()

	// Flood well past the per-subscriber buffer without draining ch, so
	// publish starts dropping events and signaling lag instead of
	// blocking.
	for i := 0; i < globalBroadcastCapacity+8; i++ {
		h.BroadcastChannel(chanID, "message", i)
	}

	select {
	case <-lagged:
	default:
		t.Fatal("expected lag signal after overflowing the subscriber buffer")
	}

	// Drain so the goroutine-local channel doesn't leak into other tests.
	for {
		select {
		case <-ch:
			continue
		default:
		}
		break
	}
}
