// Package permission enforces the role lattice Member < Moderator <
// Admin < Owner used throughout moderation and administration.
package permission

import (
	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/store"
)

// RequireRole returns an error unless actor's role is at least min.
func RequireRole(actor store.Role, min store.Role) error {
	if actor.Level() < min.Level() {
		return apperror.Forbiddenf("Insufficient permissions")
	}
	return nil
}

// RequireHigherRole returns an error unless actor strictly outranks
// target -- equal roles can never moderate each other.
func RequireHigherRole(actor, target store.Role) error {
	if actor.Level() <= target.Level() {
		return apperror.Forbiddenf("You cannot moderate a user with an equal or higher role")
	}
	return nil
}

// CanAssignRole reports whether actor may assign newRole to someone.
// Nobody may assign Owner, and the actor must strictly outrank the
// role being granted.
func CanAssignRole(actor store.Role, newRole store.Role) error {
	if newRole == store.RoleOwner {
		return apperror.Forbiddenf("Cannot assign the owner role")
	}
	if actor.Level() <= newRole.Level() {
		return apperror.Forbiddenf("You cannot assign a role equal to or higher than your own")
	}
	return nil
}

// CheckNotBanned returns an error if ban is non-nil, for REST handlers
// that should reject banned users outright.
func CheckNotBanned(ban *store.Ban) error {
	if ban != nil {
		return apperror.Forbiddenf("You are banned from this server")
	}
	return nil
}

// CheckNotMuted returns an error if mute is non-nil.
func CheckNotMuted(mute *store.Mute) error {
	if mute != nil {
		return apperror.Forbiddenf("You are muted")
	}
	return nil
}

// IsMuted reports whether mute is active, swallowing lookup errors as
// "not muted" so a transient store failure never itself mutes someone.
// Intentionally more forgiving than the REST-path check.
func IsMuted(mute *store.Mute, lookupErr error) bool {
	if lookupErr != nil {
		return false
	}
	return mute != nil
}
