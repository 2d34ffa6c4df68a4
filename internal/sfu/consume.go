package sfu

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/iohzrd/echora/internal/apperror"
)

// Consume creates a local track mirroring producerID's media and adds
// it to the consuming transport's connection, registering the new
// consumer's id under that connection.
func (s *Service) Consume(channelID, callerID, transportID, producerID uuid.UUID) (uuid.UUID, error) {
	r := s.router(channelID)
	consumerConn, ok := r.find(transportID)
	if !ok {
		return uuid.Nil, apperror.NotFoundf("Transport not found")
	}
	if consumerConn.UserID != callerID {
		return uuid.Nil, apperror.Forbiddenf("Transport does not belong to you")
	}

	producerConn, producer := r.findProducer(producerID)
	if producerConn == nil || producer == nil {
		return uuid.Nil, apperror.NotFoundf("Producer not found")
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		producer.track.Codec().RTPCodecCapability,
		fmt.Sprintf("consumer-%s", producerID),
		fmt.Sprintf("channel-%s", channelID),
	)
	if err != nil {
		return uuid.Nil, apperror.Internalf(err, "create local track")
	}

	if _, err := consumerConn.pc.AddTrack(local); err != nil {
		return uuid.Nil, apperror.Internalf(err, "add consumer track")
	}

	consumerID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, apperror.Internalf(err, "generate consumer id")
	}

	consumerConn.mu.Lock()
	consumerConn.consumerIDs[consumerID] = struct{}{}
	consumerConn.mu.Unlock()

	go forwardRTP(producer.track, local)

	return consumerID, nil
}

// findProducer scans transports in the router for the one that owns
// producerID -- O(participants) but voice channels are small.
func (r *Router) findProducer(producerID uuid.UUID) (*Connection, *Producer) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byTransport))
	for _, c := range r.byTransport {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		p, ok := c.producers[producerID]
		c.mu.Unlock()
		if ok {
			return c, p
		}
	}
	return nil, nil
}
