package permission

import (
	"testing"

	"github.com/iohzrd/echora/internal/store"
)

func TestRequireHigherRoleRejectsEqual(t *testing.T) {
	if err := RequireHigherRole(store.RoleModerator, store.RoleModerator); err == nil {
		t.Fatal("expected error for equal roles")
	}
}

func TestRequireHigherRoleAllowsStrictlyGreater(t *testing.T) {
	if err := RequireHigherRole(store.RoleAdmin, store.RoleModerator); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCanAssignRoleRejectsOwner(t *testing.T) {
	if err := CanAssignRole(store.RoleOwner, store.RoleOwner); err == nil {
		t.Fatal("expected error assigning owner role")
	}
}

func TestCanAssignRoleRejectsEqualOrHigher(t *testing.T) {
	if err := CanAssignRole(store.RoleAdmin, store.RoleAdmin); err == nil {
		t.Fatal("expected error assigning a role equal to actor's own")
	}
}

func TestCanAssignRoleAllowsStrictlyLower(t *testing.T) {
	if err := CanAssignRole(store.RoleOwner, store.RoleAdmin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsMutedSwallowsLookupErrors(t *testing.T) {
	if IsMuted(&store.Mute{}, errSentinel) {
		t.Fatal("expected IsMuted to return false on lookup error")
	}
}

var errSentinel = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "sentinel" }
