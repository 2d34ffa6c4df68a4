package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// CreateBan upserts a ban for the user, replacing any existing ban
// (reason/expiry/banned_by) -- a user can only have one active ban row.
func (s *Store) CreateBan(ctx context.Context, b *Ban) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (id, user_id, banned_by, reason, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   banned_by = excluded.banned_by,
		   reason = excluded.reason,
		   expires_at = excluded.expires_at,
		   created_at = excluded.created_at`,
		b.ID.String(), b.UserID.String(), b.BannedBy.String(), b.Reason, b.ExpiresAt, b.CreatedAt)
	return err
}

func (s *Store) GetActiveBan(ctx context.Context, userID uuid.UUID, now int64) (*Ban, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, banned_by, reason, expires_at, created_at FROM bans
		 WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`, userID.String(), now)
	var b Ban
	var idStr, userIDStr, bannedBy string
	if err := row.Scan(&idStr, &userIDStr, &bannedBy, &b.Reason, &b.ExpiresAt, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.ID = uuid.MustParse(idStr)
	b.UserID = uuid.MustParse(userIDStr)
	b.BannedBy = uuid.MustParse(bannedBy)
	return &b, nil
}

func (s *Store) RemoveBan(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE user_id = ?`, userID.String())
	return err
}

func (s *Store) GetAllBans(ctx context.Context) ([]Ban, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, banned_by, reason, expires_at, created_at FROM bans ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ban
	for rows.Next() {
		var b Ban
		var idStr, userIDStr, bannedBy string
		if err := rows.Scan(&idStr, &userIDStr, &bannedBy, &b.Reason, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.ID = uuid.MustParse(idStr)
		b.UserID = uuid.MustParse(userIDStr)
		b.BannedBy = uuid.MustParse(bannedBy)
		out = append(out, b)
	}
	return out, rows.Err()
}

// CleanupExpiredBans deletes bans whose expiry has passed, returning
// the number removed -- called periodically from the maintenance loop.
func (s *Store) CleanupExpiredBans(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CreateMute(ctx context.Context, m *Mute) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mutes (id, user_id, muted_by, reason, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   muted_by = excluded.muted_by,
		   reason = excluded.reason,
		   expires_at = excluded.expires_at,
		   created_at = excluded.created_at`,
		m.ID.String(), m.UserID.String(), m.MutedBy.String(), m.Reason, m.ExpiresAt, m.CreatedAt)
	return err
}

func (s *Store) GetActiveMute(ctx context.Context, userID uuid.UUID, now int64) (*Mute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, muted_by, reason, expires_at, created_at FROM mutes
		 WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`, userID.String(), now)
	var m Mute
	var idStr, userIDStr, mutedBy string
	if err := row.Scan(&idStr, &userIDStr, &mutedBy, &m.Reason, &m.ExpiresAt, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.ID = uuid.MustParse(idStr)
	m.UserID = uuid.MustParse(userIDStr)
	m.MutedBy = uuid.MustParse(mutedBy)
	return &m, nil
}

func (s *Store) RemoveMute(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutes WHERE user_id = ?`, userID.String())
	return err
}

func (s *Store) GetAllMutes(ctx context.Context) ([]Mute, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, muted_by, reason, expires_at, created_at FROM mutes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mute
	for rows.Next() {
		var m Mute
		var idStr, userIDStr, mutedBy string
		if err := rows.Scan(&idStr, &userIDStr, &mutedBy, &m.Reason, &m.ExpiresAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = uuid.MustParse(idStr)
		m.UserID = uuid.MustParse(userIDStr)
		m.MutedBy = uuid.MustParse(mutedBy)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CleanupExpiredMutes(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mutes WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
