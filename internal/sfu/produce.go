package sfu

import (
	"io"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/state"
)

// NewProducerEvent is broadcast globally so peers know to issue a
// consume request for the new track.
type NewProducerEvent struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	UserID     uuid.UUID `json:"user_id"`
	ProducerID uuid.UUID `json:"producer_id"`
	Kind       string    `json:"kind"`
	Label      string    `json:"label,omitempty"`
}

// Produce registers an inbound track as a producer, then forwards its
// RTP packets into any local track a later Consume call creates for
// it. hub is used to broadcast new_producer.
func (s *Service) Produce(hub *state.Hub, channelID, callerID, transportID uuid.UUID, label string) (uuid.UUID, error) {
	r := s.router(channelID)
	conn, ok := r.find(transportID)
	if !ok {
		return uuid.Nil, apperror.NotFoundf("Transport not found")
	}
	if conn.UserID != callerID {
		return uuid.Nil, apperror.Forbiddenf("Transport does not belong to you")
	}

	producerID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, apperror.Internalf(err, "generate producer id")
	}

	conn.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p := &Producer{ID: producerID, Label: label, Kind: remote.Kind(), track: remote}
		conn.mu.Lock()
		conn.producers[producerID] = p
		conn.mu.Unlock()

		hub.BroadcastGlobal("new_producer", NewProducerEvent{
			ChannelID: channelID, UserID: callerID, ProducerID: producerID,
			Kind: remote.Kind().String(), Label: label,
		})
	})

	return producerID, nil
}

// forwardRTP copies RTP packets from remote onto local until either
// side closes. Runs in its own goroutine per (producer, consumer)
// pair.
func forwardRTP(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
	buf := make([]byte, 1500)
	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Debug("rtp forward stopped", "err", err)
			}
			return
		}
		if _, err := local.Write(buf[:n]); err != nil {
			return
		}
	}
}
