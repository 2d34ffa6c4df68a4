package moderation

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hub := state.New()
	sfuSvc := sfu.NewService(hub, "127.0.0.1")
	return New(st, hub, sfuSvc), st
}

func createUser(t *testing.T, st *store.Store, role store.Role) uuid.UUID {
	t.Helper()
	id, _ := uuid.NewV7()
	if err := st.CreateUser(context.Background(), &store.User{
		ID: id, Username: id.String()[:8], Email: id.String()[:8] + "@example.com",
		PasswordHash: "x", Role: role, CreatedAt: 1,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestBanRejectsEqualRole(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	actor := createUser(t, st, store.RoleModerator)
	target := createUser(t, st, store.RoleModerator)

	if err := svc.Ban(ctx, actor, target, nil, nil); err == nil {
		t.Fatal("expected error banning a peer of equal role")
	}
}

func TestBanWritesCacheAndLog(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	actor := createUser(t, st, store.RoleAdmin)
	target := createUser(t, st, store.RoleMember)

	if err := svc.Ban(ctx, actor, target, nil, nil); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !svc.hub.IsBannedCached(target) {
		t.Error("expected ban cache to be populated")
	}

	entries, err := st.GetModLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetModLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != store.ActionBan {
		t.Errorf("mod log: got %+v", entries)
	}
}

func TestChangeRoleRejectsOwnerTarget(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	actor := createUser(t, st, store.RoleOwner)
	owner2 := createUser(t, st, store.RoleOwner)

	if err := svc.ChangeRole(ctx, actor, owner2, store.RoleAdmin); err == nil {
		t.Fatal("expected error changing another owner's role")
	}
}

func TestChangeRoleRejectsAssigningOwner(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	actor := createUser(t, st, store.RoleOwner)
	target := createUser(t, st, store.RoleMember)

	if err := svc.ChangeRole(ctx, actor, target, store.RoleOwner); err == nil {
		t.Fatal("expected error assigning owner role")
	}
}

func TestCreateInviteCodeHasNoAmbiguousCharacters(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	actor := createUser(t, st, store.RoleOwner)

	inv, err := svc.CreateInvite(ctx, actor, nil, nil)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if len(inv.Code) != 8 {
		t.Fatalf("code length: got %d, want 8", len(inv.Code))
	}
	for _, c := range inv.Code {
		if c == '0' || c == 'O' || c == '1' || c == 'I' || c == 'L' {
			t.Errorf("unexpected ambiguous character %q in code %q", c, inv.Code)
		}
	}
}
