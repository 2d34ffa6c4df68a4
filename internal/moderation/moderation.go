// Package moderation implements kick/ban/mute/role-change/invite
// handling. Ban, unban, mute, unmute and role change write or remove
// their row, keep the in-memory ban/mute cache in step where there is
// one, append an audit log entry, and broadcast the corresponding
// event globally. Kick has no row of its own: it logs, removes the
// user from voice, and broadcasts. CreateInvite only stores the invite.
package moderation

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/permission"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

// inviteAlphabet avoids visually ambiguous characters (0/O, 1/I/L).
const inviteAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

type Service struct {
	store *store.Store
	hub   *state.Hub
	sfu   *sfu.Service
}

func New(st *store.Store, hub *state.Hub, sfuSvc *sfu.Service) *Service {
	return &Service{store: st, hub: hub, sfu: sfuSvc}
}

func (s *Service) requireModeratorAction(ctx context.Context, actorID, targetID uuid.UUID, minRole store.Role) (store.Role, store.Role, error) {
	actorRole, err := s.store.GetUserRole(ctx, actorID)
	if err != nil {
		return "", "", err
	}
	if err := permission.RequireRole(actorRole, minRole); err != nil {
		return "", "", err
	}
	targetRole, err := s.store.GetUserRole(ctx, targetID)
	if err != nil {
		return "", "", err
	}
	if err := permission.RequireHigherRole(actorRole, targetRole); err != nil {
		return "", "", err
	}
	return actorRole, targetRole, nil
}

func (s *Service) Kick(ctx context.Context, actorID, targetID uuid.UUID, reason *string) error {
	if _, _, err := s.requireModeratorAction(ctx, actorID, targetID, store.RoleModerator); err != nil {
		return err
	}

	entry := &store.ModLogEntry{Action: store.ActionKick, ModeratorID: actorID, TargetUserID: targetID, Reason: reason, CreatedAt: time.Now().Unix()}
	if err := s.logAndAssignID(ctx, entry); err != nil {
		return err
	}

	for _, channelID := range s.hub.RemoveUserFromVoice(targetID) {
		s.sfu.CloseUserConnections(channelID, targetID)
		s.hub.BroadcastChannel(channelID, "voice_user_left", map[string]any{"user_id": targetID, "channel_id": channelID})
	}

	s.hub.BroadcastGlobal("user_kicked", map[string]any{"user_id": targetID, "moderator_id": actorID, "reason": reason})
	return nil
}

func (s *Service) Ban(ctx context.Context, actorID, targetID uuid.UUID, reason *string, expiresAt *int64) error {
	if _, _, err := s.requireModeratorAction(ctx, actorID, targetID, store.RoleModerator); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate ban id")
	}
	now := time.Now().Unix()
	if err := s.store.CreateBan(ctx, &store.Ban{ID: id, UserID: targetID, BannedBy: actorID, Reason: reason, ExpiresAt: expiresAt, CreatedAt: now}); err != nil {
		return err
	}
	s.hub.CacheBan(targetID)

	if err := s.logAndAssignID(ctx, &store.ModLogEntry{Action: store.ActionBan, ModeratorID: actorID, TargetUserID: targetID, Reason: reason, CreatedAt: now}); err != nil {
		return err
	}

	for _, channelID := range s.hub.RemoveUserFromVoice(targetID) {
		s.sfu.CloseUserConnections(channelID, targetID)
		s.hub.BroadcastChannel(channelID, "voice_user_left", map[string]any{"user_id": targetID, "channel_id": channelID})
	}

	s.hub.BroadcastGlobal("user_banned", map[string]any{"user_id": targetID, "moderator_id": actorID, "reason": reason, "expires_at": expiresAt})
	return nil
}

func (s *Service) Unban(ctx context.Context, actorID, targetID uuid.UUID) error {
	actorRole, err := s.store.GetUserRole(ctx, actorID)
	if err != nil {
		return err
	}
	if err := permission.RequireRole(actorRole, store.RoleModerator); err != nil {
		return err
	}

	if err := s.store.RemoveBan(ctx, targetID); err != nil {
		return err
	}
	s.hub.UncacheBan(targetID)

	if err := s.logAndAssignID(ctx, &store.ModLogEntry{Action: store.ActionUnban, ModeratorID: actorID, TargetUserID: targetID, CreatedAt: time.Now().Unix()}); err != nil {
		return err
	}

	s.hub.BroadcastGlobal("user_unbanned", map[string]any{"user_id": targetID, "moderator_id": actorID})
	return nil
}

func (s *Service) Mute(ctx context.Context, actorID, targetID uuid.UUID, reason *string, expiresAt *int64) error {
	if _, _, err := s.requireModeratorAction(ctx, actorID, targetID, store.RoleModerator); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate mute id")
	}
	now := time.Now().Unix()
	if err := s.store.CreateMute(ctx, &store.Mute{ID: id, UserID: targetID, MutedBy: actorID, Reason: reason, ExpiresAt: expiresAt, CreatedAt: now}); err != nil {
		return err
	}
	s.hub.CacheMute(targetID)

	if err := s.logAndAssignID(ctx, &store.ModLogEntry{Action: store.ActionMute, ModeratorID: actorID, TargetUserID: targetID, Reason: reason, CreatedAt: now}); err != nil {
		return err
	}

	s.hub.BroadcastGlobal("user_muted", map[string]any{"user_id": targetID, "moderator_id": actorID, "reason": reason, "expires_at": expiresAt})
	return nil
}

func (s *Service) Unmute(ctx context.Context, actorID, targetID uuid.UUID) error {
	actorRole, err := s.store.GetUserRole(ctx, actorID)
	if err != nil {
		return err
	}
	if err := permission.RequireRole(actorRole, store.RoleModerator); err != nil {
		return err
	}

	if err := s.store.RemoveMute(ctx, targetID); err != nil {
		return err
	}
	s.hub.UncacheMute(targetID)

	if err := s.logAndAssignID(ctx, &store.ModLogEntry{Action: store.ActionUnmute, ModeratorID: actorID, TargetUserID: targetID, CreatedAt: time.Now().Unix()}); err != nil {
		return err
	}

	s.hub.BroadcastGlobal("user_unmuted", map[string]any{"user_id": targetID, "moderator_id": actorID})
	return nil
}

func (s *Service) ChangeRole(ctx context.Context, actorID, targetID uuid.UUID, newRole store.Role) error {
	actorRole, targetRole, err := s.requireModeratorAction(ctx, actorID, targetID, store.RoleAdmin)
	if err != nil {
		return err
	}
	if targetRole == store.RoleOwner {
		return apperror.Forbiddenf("The owner's role cannot be changed")
	}
	if err := permission.CanAssignRole(actorRole, newRole); err != nil {
		return err
	}

	if err := s.store.SetUserRole(ctx, targetID, newRole); err != nil {
		return err
	}

	details := string(newRole)
	if err := s.logAndAssignID(ctx, &store.ModLogEntry{Action: store.ActionRoleChange, ModeratorID: actorID, TargetUserID: targetID, Details: &details, CreatedAt: time.Now().Unix()}); err != nil {
		return err
	}

	s.hub.BroadcastGlobal("user_role_changed", map[string]any{"user_id": targetID, "moderator_id": actorID, "role": newRole})
	return nil
}

func (s *Service) logAndAssignID(ctx context.Context, entry *store.ModLogEntry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate mod log id")
	}
	entry.ID = id
	return s.store.CreateModLogEntry(ctx, entry)
}

// CreateInvite mints an 8-character invite code from an
// ambiguity-free alphabet.
func (s *Service) CreateInvite(ctx context.Context, actorID uuid.UUID, maxUses *int64, expiresAt *int64) (*store.Invite, error) {
	code, err := randomInviteCode()
	if err != nil {
		return nil, apperror.Internalf(err, "generate invite code")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate invite id")
	}
	inv := &store.Invite{ID: id, Code: code, CreatedBy: actorID, MaxUses: maxUses, ExpiresAt: expiresAt, CreatedAt: time.Now().Unix()}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func randomInviteCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(out), nil
}
