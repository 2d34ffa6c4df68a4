// Package state holds the process-singleton in-memory state shared by
// every connection: presence, voice membership, broadcast fan-out,
// rate limits, and moderation caches. All mutable state lives in
// shard-locked concurrent maps; callers never hold more than one
// shard lock at a time.
package state

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iohzrd/echora/internal/logging"
)

var log = logging.New("state")

const globalBroadcastCapacity = 256

// Event is the {type, data} envelope sent to WebSocket clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// subscriber pairs a subscriber's event feed with a side channel that
// is signaled (coalesced, capacity 1) whenever publish had to drop an
// event for it -- the fan-out's lag signal.
type subscriber struct {
	events chan Event
	lagged chan struct{}
}

// channelPlane is one channel's broadcast sender plus the set of
// subscribers fed from it.
type channelPlane struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newChannelPlane() *channelPlane {
	return &channelPlane{subs: make(map[*subscriber]struct{})}
}

func (p *channelPlane) subscribe() *subscriber {
	sub := &subscriber{
		events: make(chan Event, globalBroadcastCapacity),
		lagged: make(chan struct{}, 1),
	}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	return sub
}

func (p *channelPlane) unsubscribe(sub *subscriber) {
	p.mu.Lock()
	delete(p.subs, sub)
	p.mu.Unlock()
	close(sub.events)
	close(sub.lagged)
}

func (p *channelPlane) publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		select {
		case sub.events <- ev:
		default:
			// Slow consumer: drop the event and signal lag instead of
			// blocking the publisher; the receiver reloads from
			// persistence via sync_required.
			select {
			case sub.lagged <- struct{}{}:
			default:
			}
		}
	}
}

// UserPresence tracks one online user across all of their sockets.
type UserPresence struct {
	UserID      uuid.UUID
	Username    string
	AvatarURL   *string
	ConnectedAt int64
	Sockets     int
}

// VoiceState tracks one user's membership in a voice channel.
type VoiceState struct {
	UserID          uuid.UUID
	Username        string
	AvatarURL       *string
	ChannelID       uuid.UUID
	SessionID       string
	IsMuted         bool
	IsDeafened      bool
	IsScreenSharing bool
	IsCameraSharing bool
	JoinedAt        int64
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

const (
	rateLimitCapacity   = 5.0
	rateLimitRefillRate = 1.0
)

// Hub is the process-singleton State Hub (C4).
type Hub struct {
	channelBroadcasts *xsync.MapOf[uuid.UUID, *channelPlane]
	global            *channelPlane

	onlineUsers *xsync.MapOf[uuid.UUID, *UserPresence]
	onlineMu    sync.Mutex

	voiceStates *xsync.MapOf[uuid.UUID, *xsync.MapOf[uuid.UUID, *VoiceState]]

	bannedUsers *xsync.MapOf[uuid.UUID, struct{}]
	mutedUsers  *xsync.MapOf[uuid.UUID, struct{}]

	rateLimits *xsync.MapOf[uuid.UUID, *bucket]

	webauthnReg  *xsync.MapOf[uuid.UUID, challengeEntry]
	webauthnAuth *xsync.MapOf[string, challengeEntry]
}

type challengeEntry struct {
	Data      []byte
	ExpiresAt time.Time
}

func New() *Hub {
	return &Hub{
		channelBroadcasts: xsync.NewMapOf[uuid.UUID, *channelPlane](),
		global:            newChannelPlane(),
		onlineUsers:       xsync.NewMapOf[uuid.UUID, *UserPresence](),
		voiceStates:       xsync.NewMapOf[uuid.UUID, *xsync.MapOf[uuid.UUID, *VoiceState]](),
		bannedUsers:       xsync.NewMapOf[uuid.UUID, struct{}](),
		mutedUsers:        xsync.NewMapOf[uuid.UUID, struct{}](),
		rateLimits:        xsync.NewMapOf[uuid.UUID, *bucket](),
		webauthnReg:       xsync.NewMapOf[uuid.UUID, challengeEntry](),
		webauthnAuth:      xsync.NewMapOf[string, challengeEntry](),
	}
}

// BroadcastGlobal sends {type, data} to every connected socket.
func (h *Hub) BroadcastGlobal(eventType string, data any) {
	h.global.publish(Event{Type: eventType, Data: data})
}

// BroadcastChannel sends {type, data} to subscribers of channelID. A
// no-op if nothing is subscribed.
func (h *Hub) BroadcastChannel(channelID uuid.UUID, eventType string, data any) {
	plane, ok := h.channelBroadcasts.Load(channelID)
	if !ok {
		return
	}
	plane.publish(Event{Type: eventType, Data: data})
}

// SubscribeGlobal returns a channel fed by the global plane, a side
// channel signaled whenever this subscriber fell behind and missed an
// event, and a cleanup function the caller must defer.
func (h *Hub) SubscribeGlobal() (events <-chan Event, lagged <-chan struct{}, unsub func()) {
	sub := h.global.subscribe()
	return sub.events, sub.lagged, func() { h.global.unsubscribe(sub) }
}

// SubscribeChannel returns a channel fed by channelID's plane plus a
// lag signal, creating the plane lazily on first subscriber.
func (h *Hub) SubscribeChannel(channelID uuid.UUID) (events <-chan Event, lagged <-chan struct{}, unsub func()) {
	plane, _ := h.channelBroadcasts.LoadOrCompute(channelID, newChannelPlane)
	sub := plane.subscribe()
	return sub.events, sub.lagged, func() { plane.unsubscribe(sub) }
}

// --- presence ---

func (h *Hub) UserConnected(p *UserPresence) (firstSocket bool) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	existing, ok := h.onlineUsers.Load(p.UserID)
	if ok {
		existing.Sockets++
		return false
	}
	p.Sockets = 1
	h.onlineUsers.Store(p.UserID, p)
	return true
}

// UserDisconnected decrements the socket count, removing presence
// entirely once the last socket closes.
func (h *Hub) UserDisconnected(userID uuid.UUID) (lastSocket bool) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	existing, ok := h.onlineUsers.Load(userID)
	if !ok {
		return false
	}
	existing.Sockets--
	if existing.Sockets <= 0 {
		h.onlineUsers.Delete(userID)
		return true
	}
	return false
}

func (h *Hub) OnlineUsers() []UserPresence {
	var out []UserPresence
	h.onlineUsers.Range(func(_ uuid.UUID, p *UserPresence) bool {
		out = append(out, *p)
		return true
	})
	return out
}

// Stats reports a point-in-time snapshot for the maintenance metrics
// loop: connected users, active voice channels, and total voice
// participants across all of them.
func (h *Hub) Stats() (onlineUsers, voiceChannels, voiceParticipants int) {
	h.onlineUsers.Range(func(_ uuid.UUID, _ *UserPresence) bool {
		onlineUsers++
		return true
	})
	h.voiceStates.Range(func(_ uuid.UUID, inner *xsync.MapOf[uuid.UUID, *VoiceState]) bool {
		voiceChannels++
		inner.Range(func(_ uuid.UUID, _ *VoiceState) bool {
			voiceParticipants++
			return true
		})
		return true
	})
	return onlineUsers, voiceChannels, voiceParticipants
}

// --- voice ---

// JoinVoice evicts the user's prior voice membership (if any) across
// all channels, then inserts them into channelID's map.
func (h *Hub) JoinVoice(channelID uuid.UUID, vs *VoiceState) (evictedFrom []uuid.UUID) {
	evictedFrom = h.removeFromAllVoice(vs.UserID, channelID)
	inner, _ := h.voiceStates.LoadOrCompute(channelID, func() *xsync.MapOf[uuid.UUID, *VoiceState] {
		return xsync.NewMapOf[uuid.UUID, *VoiceState]()
	})
	inner.Store(vs.UserID, vs)
	return evictedFrom
}

// removeFromAllVoice walks outer keys (collected up front, per the
// no-nested-lock invariant) removing userID from each channel except
// skipChannel, pruning channels that become empty.
func (h *Hub) removeFromAllVoice(userID uuid.UUID, skipChannel uuid.UUID) []uuid.UUID {
	var channelIDs []uuid.UUID
	h.voiceStates.Range(func(cid uuid.UUID, _ *xsync.MapOf[uuid.UUID, *VoiceState]) bool {
		channelIDs = append(channelIDs, cid)
		return true
	})

	var removedFrom []uuid.UUID
	for _, cid := range channelIDs {
		if cid == skipChannel {
			continue
		}
		inner, ok := h.voiceStates.Load(cid)
		if !ok {
			continue
		}
		if _, existed := inner.LoadAndDelete(userID); existed {
			removedFrom = append(removedFrom, cid)
		}
		if isEmptyVoiceMap(inner) {
			h.voiceStates.Delete(cid)
		}
	}
	return removedFrom
}

// RemoveUserFromVoice removes userID from every voice channel (used on
// disconnect, kick, and ban), returning the channels they left.
func (h *Hub) RemoveUserFromVoice(userID uuid.UUID) []uuid.UUID {
	return h.removeFromAllVoice(userID, uuid.Nil)
}

func (h *Hub) VoiceStatesForChannel(channelID uuid.UUID) []VoiceState {
	inner, ok := h.voiceStates.Load(channelID)
	if !ok {
		return nil
	}
	var out []VoiceState
	inner.Range(func(_ uuid.UUID, vs *VoiceState) bool {
		out = append(out, *vs)
		return true
	})
	return out
}

// FindVoiceState locates userID's current voice membership, if any,
// scanning outer keys first per the no-nested-lock invariant.
func (h *Hub) FindVoiceState(userID uuid.UUID) (VoiceState, bool) {
	var channelIDs []uuid.UUID
	h.voiceStates.Range(func(cid uuid.UUID, _ *xsync.MapOf[uuid.UUID, *VoiceState]) bool {
		channelIDs = append(channelIDs, cid)
		return true
	})
	for _, cid := range channelIDs {
		inner, ok := h.voiceStates.Load(cid)
		if !ok {
			continue
		}
		if vs, ok := inner.Load(userID); ok {
			return *vs, true
		}
	}
	return VoiceState{}, false
}

// UpdateVoiceFlags applies mutate to a copy of userID's voice state in
// channelID and stores the result, replacing the pointer wholesale
// rather than mutating shared state in place.
func (h *Hub) UpdateVoiceFlags(channelID, userID uuid.UUID, mutate func(VoiceState) VoiceState) (VoiceState, bool) {
	inner, ok := h.voiceStates.Load(channelID)
	if !ok {
		return VoiceState{}, false
	}
	existing, ok := inner.Load(userID)
	if !ok {
		return VoiceState{}, false
	}
	updated := mutate(*existing)
	inner.Store(userID, &updated)
	return updated, true
}

func isEmptyVoiceMap(inner *xsync.MapOf[uuid.UUID, *VoiceState]) bool {
	empty := true
	inner.Range(func(_ uuid.UUID, _ *VoiceState) bool {
		empty = false
		return false
	})
	return empty
}

// --- ban / mute caches ---

func (h *Hub) CacheBan(userID uuid.UUID)     { h.bannedUsers.Store(userID, struct{}{}) }
func (h *Hub) UncacheBan(userID uuid.UUID)   { h.bannedUsers.Delete(userID) }
func (h *Hub) IsBannedCached(userID uuid.UUID) bool {
	_, ok := h.bannedUsers.Load(userID)
	return ok
}

func (h *Hub) CacheMute(userID uuid.UUID)   { h.mutedUsers.Store(userID, struct{}{}) }
func (h *Hub) UncacheMute(userID uuid.UUID) { h.mutedUsers.Delete(userID) }
func (h *Hub) IsMutedCached(userID uuid.UUID) bool {
	_, ok := h.mutedUsers.Load(userID)
	return ok
}

// RebuildBanMuteCaches replaces the cached sets wholesale from the
// authoritative active rows, called periodically by the maintenance
// loop after sweeping expirations.
func (h *Hub) RebuildBanMuteCaches(bannedIDs, mutedIDs []uuid.UUID) {
	fresh := xsync.NewMapOf[uuid.UUID, struct{}]()
	for _, id := range bannedIDs {
		fresh.Store(id, struct{}{})
	}
	h.bannedUsers = fresh

	freshMutes := xsync.NewMapOf[uuid.UUID, struct{}]()
	for _, id := range mutedIDs {
		freshMutes.Store(id, struct{}{})
	}
	h.mutedUsers = freshMutes
}

// --- rate limiting ---

// CheckMessageRateLimit refills the caller's bucket by elapsed time,
// then atomically consumes one token, returning whether the message
// is allowed.
func (h *Hub) CheckMessageRateLimit(userID uuid.UUID) bool {
	b, _ := h.rateLimits.LoadOrCompute(userID, func() *bucket {
		return &bucket{tokens: rateLimitCapacity, lastRefill: time.Now()}
	})
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * rateLimitRefillRate
	if b.tokens > rateLimitCapacity {
		b.tokens = rateLimitCapacity
	}
	b.lastRefill = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

// --- WebAuthn challenge tables ---

const webauthnChallengeTTL = 5 * time.Minute

func (h *Hub) PutRegistrationChallenge(userID uuid.UUID, sessionData any) error {
	blob, err := json.Marshal(sessionData)
	if err != nil {
		return err
	}
	h.webauthnReg.Store(userID, challengeEntry{Data: blob, ExpiresAt: time.Now().Add(webauthnChallengeTTL)})
	return nil
}

func (h *Hub) TakeRegistrationChallenge(userID uuid.UUID, out any) bool {
	entry, ok := h.webauthnReg.LoadAndDelete(userID)
	if !ok || time.Now().After(entry.ExpiresAt) {
		return false
	}
	return json.Unmarshal(entry.Data, out) == nil
}

func (h *Hub) PutAuthChallenge(key string, sessionData any) error {
	blob, err := json.Marshal(sessionData)
	if err != nil {
		return err
	}
	h.webauthnAuth.Store(key, challengeEntry{Data: blob, ExpiresAt: time.Now().Add(webauthnChallengeTTL)})
	return nil
}

func (h *Hub) TakeAuthChallenge(key string, out any) bool {
	entry, ok := h.webauthnAuth.LoadAndDelete(key)
	if !ok || time.Now().After(entry.ExpiresAt) {
		return false
	}
	return json.Unmarshal(entry.Data, out) == nil
}

// SweepExpiredChallenges drops any challenge entries past their TTL,
// called periodically by the maintenance loop.
func (h *Hub) SweepExpiredChallenges() {
	now := time.Now()
	var expiredReg []uuid.UUID
	h.webauthnReg.Range(func(k uuid.UUID, v challengeEntry) bool {
		if now.After(v.ExpiresAt) {
			expiredReg = append(expiredReg, k)
		}
		return true
	})
	for _, k := range expiredReg {
		h.webauthnReg.Delete(k)
	}

	var expiredAuth []string
	h.webauthnAuth.Range(func(k string, v challengeEntry) bool {
		if now.After(v.ExpiresAt) {
			expiredAuth = append(expiredAuth, k)
		}
		return true
	})
	for _, k := range expiredAuth {
		h.webauthnAuth.Delete(k)
	}
	if n := len(expiredReg) + len(expiredAuth); n > 0 {
		log.Debug("swept expired webauthn challenges", "count", n)
	}
}
