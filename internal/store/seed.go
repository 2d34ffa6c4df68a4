package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const defaultServerName = "Echora"

// Seed ensures the database has a usable starting state: default
// channels, baseline server settings, and an owner. It is idempotent
// and safe to call on every startup.
func (s *Store) Seed(ctx context.Context, now int64) error {
	var channelCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&channelCount); err != nil {
		return err
	}
	if channelCount == 0 {
		defaults := []struct {
			name string
			kind ChannelType
		}{
			{"general", ChannelText},
			{"random", ChannelText},
			{"announcements", ChannelText},
			{"General Voice", ChannelVoice},
		}
		for _, d := range defaults {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			if err := s.CreateChannel(ctx, &Channel{ID: id, Name: d.name, ChannelType: d.kind, CreatedAt: now}); err != nil {
				return err
			}
		}
		log.Info("seeded default channels")
	}

	if err := s.seedSettingIfAbsent(ctx, "server_name", defaultServerName, now); err != nil {
		return err
	}
	if err := s.seedSettingIfAbsent(ctx, "registration_mode", "open", now); err != nil {
		return err
	}

	return s.promoteOwnerIfNone(ctx)
}

func (s *Store) seedSettingIfAbsent(ctx context.Context, key, value string, now int64) error {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM server_settings WHERE key = ?`, key).Scan(&existing)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	return s.SetSetting(ctx, key, value, now)
}

// promoteOwnerIfNone promotes the earliest-created user to owner when
// the server has no owner yet, so a fresh install always has someone
// who can administer it.
func (s *Store) promoteOwnerIfNone(ctx context.Context) error {
	var ownerCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, string(RoleOwner)).Scan(&ownerCount); err != nil {
		return err
	}
	if ownerCount > 0 {
		return nil
	}

	var oldestID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users ORDER BY created_at ASC LIMIT 1`).Scan(&oldestID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	id, err := uuid.Parse(oldestID)
	if err != nil {
		return err
	}
	if err := s.SetUserRole(ctx, id, RoleOwner); err != nil {
		return err
	}
	log.Info("promoted user to owner", "user_id", id.String())
	return nil
}
