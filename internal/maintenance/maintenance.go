// Package maintenance runs the background tickers every server
// instance needs: ban/mute expiry sweeps, ban/mute cache rebuilds,
// WebAuthn challenge expiry, periodic SQLite query-planner
// optimization, and presence/voice metrics logging. Grounded on
// main.go's three background goroutines (metrics ticker, mute-expiry
// + ban-purge ticker, hourly Optimize ticker).
package maintenance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

var log = logging.New("maintenance")

const (
	expirySweepInterval  = 10 * time.Second
	optimizeInterval     = 1 * time.Hour
	metricsInterval      = 30 * time.Second
	challengeSweepPeriod = 1 * time.Minute
)

// Run starts each maintenance ticker in its own goroutine and returns
// at once; the tickers stop when ctx is canceled.
func Run(ctx context.Context, st *store.Store, hub *state.Hub) {
	go runExpirySweep(ctx, st, hub)
	go runOptimize(ctx, st)
	go runMetrics(ctx, hub)
	go runChallengeSweep(ctx, hub)
}

func runExpirySweep(ctx context.Context, st *store.Store, hub *state.Hub) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepExpired(ctx, st, hub)
		}
	}
}

func sweepExpired(ctx context.Context, st *store.Store, hub *state.Hub) {
	now := time.Now().Unix()
	if removed, err := st.CleanupExpiredBans(ctx, now); err != nil {
		log.Warn("cleanup expired bans", "err", err)
	} else if removed > 0 {
		log.Info("expired bans purged", "count", removed)
	}
	if removed, err := st.CleanupExpiredMutes(ctx, now); err != nil {
		log.Warn("cleanup expired mutes", "err", err)
	} else if removed > 0 {
		log.Info("expired mutes purged", "count", removed)
	}
	rebuildCaches(ctx, st, hub)
}

// rebuildCaches re-derives the hub's in-memory ban/mute sets from the
// rows that are still active, so a row that just expired (or was
// purged above) stops shadowing a user's access without a restart.
func rebuildCaches(ctx context.Context, st *store.Store, hub *state.Hub) {
	now := time.Now().Unix()

	bans, err := st.GetAllBans(ctx)
	if err != nil {
		log.Warn("list bans for cache rebuild", "err", err)
		return
	}
	var bannedIDs []uuid.UUID
	for _, b := range bans {
		if b.ExpiresAt == nil || *b.ExpiresAt > now {
			bannedIDs = append(bannedIDs, b.UserID)
		}
	}

	mutes, err := st.GetAllMutes(ctx)
	if err != nil {
		log.Warn("list mutes for cache rebuild", "err", err)
		return
	}
	var mutedIDs []uuid.UUID
	for _, m := range mutes {
		if m.ExpiresAt == nil || *m.ExpiresAt > now {
			mutedIDs = append(mutedIDs, m.UserID)
		}
	}

	hub.RebuildBanMuteCaches(bannedIDs, mutedIDs)
}

func runOptimize(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(optimizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.Optimize(ctx); err != nil {
				log.Warn("optimize", "err", err)
			}
		}
	}
}

func runMetrics(ctx context.Context, hub *state.Hub) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online, voiceChannels, voiceParticipants := hub.Stats()
			if online > 0 || voiceParticipants > 0 {
				log.Info("presence snapshot",
					"online_users", online,
					"voice_channels", voiceChannels,
					"voice_participants", voiceParticipants)
			}
		}
	}
}

func runChallengeSweep(ctx context.Context, hub *state.Hub) {
	ticker := time.NewTicker(challengeSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.SweepExpiredChallenges()
		}
	}
}
