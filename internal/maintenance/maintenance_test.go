package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

func TestSweepExpiredPurgesAndRebuildsCaches(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	hub := state.New()
	ctx := context.Background()

	userID, _ := uuid.NewV7()
	if err := st.CreateUser(ctx, &store.User{
		ID: userID, Username: "temp", Email: "temp@example.com",
		PasswordHash: "x", Role: store.RoleMember, CreatedAt: 1,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	banID, _ := uuid.NewV7()
	modID, _ := uuid.NewV7()
	past := time.Now().Add(-time.Hour).Unix()
	if err := st.CreateBan(ctx, &store.Ban{ID: banID, UserID: userID, BannedBy: modID, ExpiresAt: &past, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}
	hub.CacheBan(userID)

	sweepExpired(ctx, st, hub)

	if hub.IsBannedCached(userID) {
		t.Error("expected expired ban to be evicted from the cache after sweep")
	}

	bans, err := st.GetAllBans(ctx)
	if err != nil {
		t.Fatalf("GetAllBans: %v", err)
	}
	if len(bans) != 0 {
		t.Errorf("expected expired ban row to be purged, got %d remaining", len(bans))
	}
}

func TestRebuildCachesKeepsActiveBan(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	hub := state.New()
	ctx := context.Background()

	userID, _ := uuid.NewV7()
	if err := st.CreateUser(ctx, &store.User{
		ID: userID, Username: "still-banned", Email: "still-banned@example.com",
		PasswordHash: "x", Role: store.RoleMember, CreatedAt: 1,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	banID, _ := uuid.NewV7()
	modID, _ := uuid.NewV7()
	if err := st.CreateBan(ctx, &store.Ban{ID: banID, UserID: userID, BannedBy: modID, CreatedAt: 1}); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}

	rebuildCaches(ctx, st, hub)

	if !hub.IsBannedCached(userID) {
		t.Error("expected a non-expiring ban to remain cached after rebuild")
	}
}
