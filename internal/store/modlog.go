package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) CreateModLogEntry(ctx context.Context, e *ModLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_log (id, action, moderator_id, target_user_id, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), string(e.Action), e.ModeratorID.String(), e.TargetUserID.String(), e.Reason, e.Details, e.CreatedAt)
	return err
}

func (s *Store) GetModLog(ctx context.Context, limit int) ([]ModLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, moderator_id, target_user_id, reason, details, created_at
		 FROM moderation_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModLogEntry
	for rows.Next() {
		var e ModLogEntry
		var idStr, action, modID, targetID string
		if err := rows.Scan(&idStr, &action, &modID, &targetID, &e.Reason, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = uuid.MustParse(idStr)
		e.Action = ModLogAction(action)
		e.ModeratorID = uuid.MustParse(modID)
		e.TargetUserID = uuid.MustParse(targetID)
		out = append(out, e)
	}
	return out, rows.Err()
}
