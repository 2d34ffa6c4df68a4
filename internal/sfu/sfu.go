// Package sfu coordinates WebRTC media routing: one Router per voice
// channel, one Connection per signaling session (called a
// "transport" throughout, matching the terminology the rest of the
// system uses), and software RTP forwarding between producers and
// consumers.
package sfu

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/state"
)

var log = logging.New("sfu")

const staleTransportAge = 5 * time.Second

const defaultAnnouncedIP = "127.0.0.1"

// publicIPServices are tried in order when no announced IP is
// configured, each expected to respond with the caller's IP as plain
// text.
var publicIPServices = []string{
	"https://api.ipify.org",
	"https://api64.ipify.org",
	"https://ifconfig.me/ip",
}

// resolveAnnouncedIP returns envIP unchanged if set, otherwise probes
// publicIPServices for the host's public address, falling back to
// defaultAnnouncedIP if every probe fails. This only runs once, at
// startup, so a blocking HTTP round trip here is acceptable.
func resolveAnnouncedIP(envIP string) string {
	if envIP != "" {
		log.Info("using announced IP from configuration", "ip", envIP)
		return envIP
	}

	client := &http.Client{Timeout: 3 * time.Second}
	for _, svc := range publicIPServices {
		resp, err := client.Get(svc)
		if err != nil {
			log.Warn("public IP probe failed", "service", svc, "err", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		if err != nil {
			log.Warn("public IP probe read failed", "service", svc, "err", err)
			continue
		}
		ip := strings.TrimSpace(string(body))
		if ip == "" {
			continue
		}
		log.Info("auto-detected announced IP", "ip", ip, "service", svc)
		return ip
	}

	log.Warn("failed to auto-detect public IP from any service, falling back", "ip", defaultAnnouncedIP)
	return defaultAnnouncedIP
}

// RTPCapabilities describes what the channel's router will accept and
// emit: Opus for audio, VP8 for video, with the header extensions
// clients need for synchronization and congestion control.
type RTPCapabilities struct {
	Codecs           []CodecCapability `json:"codecs"`
	HeaderExtensions []HeaderExtension `json:"headerExtensions"`
}

type CodecCapability struct {
	Kind      string `json:"kind"`
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

type HeaderExtension struct {
	Kind string `json:"kind"`
	URI  string `json:"uri"`
}

func defaultCapabilities() RTPCapabilities {
	return RTPCapabilities{
		Codecs: []CodecCapability{
			{Kind: "audio", MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{Kind: "video", MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		},
		HeaderExtensions: []HeaderExtension{
			{Kind: "audiovideo", URI: "urn:ietf:params:rtp-hdrext:sdes:mid"},
			{Kind: "audiovideo", URI: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"},
			{Kind: "audiovideo", URI: "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"},
		},
	}
}

// Producer is one inbound media track a connection is publishing.
type Producer struct {
	ID     uuid.UUID
	Label  string
	Kind   webrtc.RTPCodecType
	track  *webrtc.TrackRemote
}

// Connection is one participant's signaling session, addressed
// externally as a "transport". It owns the underlying PeerConnection
// and tracks what it has produced and consumed.
type Connection struct {
	TransportID uuid.UUID
	ChannelID   uuid.UUID
	UserID      uuid.UUID
	CreatedAt   time.Time

	pc *webrtc.PeerConnection

	mu          sync.Mutex
	producers   map[uuid.UUID]*Producer
	consumerIDs map[uuid.UUID]struct{}
}

func (c *Connection) snapshot() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := ConnectionInfo{
		ChannelID:   c.ChannelID,
		UserID:      c.UserID,
		TransportID: c.TransportID,
		CreatedAt:   c.CreatedAt.Unix(),
	}
	for id, p := range c.producers {
		info.Producers = append(info.Producers, ProducerInfo{ID: id, Label: p.Label})
	}
	for id := range c.consumerIDs {
		info.ConsumerIDs = append(info.ConsumerIDs, id)
	}
	return info
}

type ConnectionInfo struct {
	ChannelID   uuid.UUID      `json:"channel_id"`
	UserID      uuid.UUID      `json:"user_id"`
	TransportID uuid.UUID      `json:"transport_id"`
	Producers   []ProducerInfo `json:"producers"`
	ConsumerIDs []uuid.UUID    `json:"consumer_ids"`
	CreatedAt   int64          `json:"created_at"`
}

type ProducerInfo struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label,omitempty"`
}

// Router holds the WebRTC API instance and all connections for one
// voice channel, created lazily on first transport.
type Router struct {
	channelID uuid.UUID
	api       *webrtc.API

	mu          sync.Mutex
	byTransport map[uuid.UUID]*Connection
	byUser      map[uuid.UUID][]*Connection // keyed by user id
}

// Service is the process-singleton SFU coordinator (C9).
type Service struct {
	hub          *state.Hub
	announcedIP  string
	mediaEngine  func() *webrtc.API

	mu      sync.Mutex
	routers map[uuid.UUID]*Router
}

// NewService resolves the announced IP (env override, else
// auto-detected public IP, else loopback) once at startup and bakes it
// into every Router's WebRTC API via a NAT 1:1 ICE candidate mapping,
// so host candidates advertise an address reachable from outside the
// container/NAT the server runs behind.
func NewService(hub *state.Hub, announcedIP string) *Service {
	resolved := resolveAnnouncedIP(announcedIP)
	return &Service{
		hub:         hub,
		announcedIP: resolved,
		mediaEngine: func() *webrtc.API { return newAPI(resolved) },
		routers:     make(map[uuid.UUID]*Router),
	}
}

func newAPI(announcedIP string) *webrtc.API {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		panic(err)
	}
	i := &webrtc.InterceptorRegistry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		panic(err)
	}

	se := webrtc.SettingEngine{}
	se.SetNAT1To1IPs([]string{announcedIP}, webrtc.ICECandidateTypeHost)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(se))
}

func (s *Service) router(channelID uuid.UUID) *Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routers[channelID]
	if !ok {
		r = &Router{
			channelID:   channelID,
			api:         s.mediaEngine(),
			byTransport: make(map[uuid.UUID]*Connection),
			byUser:      make(map[uuid.UUID][]*Connection),
		}
		s.routers[channelID] = r
	}
	return r
}

// GetRouterCapabilities returns the channel's RTP capabilities.
func (s *Service) GetRouterCapabilities(channelID uuid.UUID) RTPCapabilities {
	return defaultCapabilities()
}

// CreateTransport GCs stale transports for (channel, user), then
// opens a new PeerConnection and indexes it under all three lookup
// paths.
func (s *Service) CreateTransport(channelID, userID uuid.UUID) (*Connection, error) {
	r := s.router(channelID)
	r.gcStale(userID)

	pc, err := r.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, apperror.Internalf(err, "create peer connection")
	}

	transportID, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate transport id")
	}
	conn := &Connection{
		TransportID: transportID,
		ChannelID:   channelID,
		UserID:      userID,
		CreatedAt:   time.Now(),
		pc:          pc,
		producers:   make(map[uuid.UUID]*Producer),
		consumerIDs: make(map[uuid.UUID]struct{}),
	}

	r.mu.Lock()
	r.byTransport[transportID] = conn
	r.byUser[userID] = append(r.byUser[userID], conn)
	r.mu.Unlock()

	return conn, nil
}

func (r *Router) gcStale(userID uuid.UUID) {
	r.mu.Lock()
	var stale []*Connection
	cutoff := time.Now().Add(-staleTransportAge)
	kept := r.byUser[userID][:0]
	for _, c := range r.byUser[userID] {
		if c.CreatedAt.Before(cutoff) {
			stale = append(stale, c)
		} else {
			kept = append(kept, c)
		}
	}
	r.byUser[userID] = kept
	for _, c := range stale {
		delete(r.byTransport, c.TransportID)
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.pc.Close()
	}
}

func (r *Router) find(transportID uuid.UUID) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byTransport[transportID]
	return c, ok
}

// ConnectTransport verifies ownership then applies the remote DTLS
// description (offer/answer exchange) to the connection.
func (s *Service) ConnectTransport(channelID, callerID, transportID uuid.UUID, answer webrtc.SessionDescription) error {
	r := s.router(channelID)
	conn, ok := r.find(transportID)
	if !ok {
		return apperror.NotFoundf("Transport not found")
	}
	if conn.UserID != callerID {
		return apperror.Forbiddenf("Transport does not belong to you")
	}
	return conn.pc.SetRemoteDescription(answer)
}

// CreateOffer generates a local offer for the transport, to be sent
// to the client for it to answer.
func (s *Service) CreateOffer(channelID, callerID, transportID uuid.UUID) (*webrtc.SessionDescription, error) {
	r := s.router(channelID)
	conn, ok := r.find(transportID)
	if !ok {
		return nil, apperror.NotFoundf("Transport not found")
	}
	if conn.UserID != callerID {
		return nil, apperror.Forbiddenf("Transport does not belong to you")
	}
	offer, err := conn.pc.CreateOffer(nil)
	if err != nil {
		return nil, apperror.Internalf(err, "create offer")
	}
	if err := conn.pc.SetLocalDescription(offer); err != nil {
		return nil, apperror.Internalf(err, "set local description")
	}
	return &offer, nil
}

// CloseConnection tears down one transport, returning (channel, user)
// for the caller to use in audit logging and presence cleanup.
func (s *Service) CloseConnection(channelID, transportID uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	r := s.router(channelID)
	r.mu.Lock()
	conn, ok := r.byTransport[transportID]
	if ok {
		delete(r.byTransport, transportID)
		kept := r.byUser[conn.UserID][:0]
		for _, c := range r.byUser[conn.UserID] {
			if c.TransportID != transportID {
				kept = append(kept, c)
			}
		}
		r.byUser[conn.UserID] = kept
	}
	r.mu.Unlock()

	if !ok {
		return uuid.Nil, uuid.Nil, apperror.NotFoundf("Transport not found")
	}
	conn.pc.Close()
	return conn.ChannelID, conn.UserID, nil
}

// CloseUserConnections closes every transport a user has open in a
// channel. Idempotent.
func (s *Service) CloseUserConnections(channelID, userID uuid.UUID) {
	r := s.router(channelID)
	r.mu.Lock()
	conns := append([]*Connection(nil), r.byUser[userID]...)
	delete(r.byUser, userID)
	for _, c := range conns {
		delete(r.byTransport, c.TransportID)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.pc.Close()
	}
}
