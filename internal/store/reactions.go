package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
		messageID.String(), userID.String(), emoji, now)
	return err
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID.String(), userID.String(), emoji)
	return err
}

// GetReactionsForMessages returns, for each message id, the distinct
// emoji used with their counts and whether requestingUser reacted with
// that emoji -- grouped in a single query rather than per-message.
func (s *Store) GetReactionsForMessages(ctx context.Context, ids []uuid.UUID, requestingUser uuid.UUID) (map[uuid.UUID][]Reaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, idArgs := idPlaceholders(ids)
	args := append([]any{requestingUser.String()}, idArgs...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, emoji, COUNT(*) AS cnt,
		        MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END) AS reacted
		 FROM reactions
		 WHERE message_id IN (`+placeholders+`)
		 GROUP BY message_id, emoji
		 ORDER BY MIN(created_at) ASC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Reaction)
	for rows.Next() {
		var msgIDStr, emoji string
		var cnt int64
		var reacted int
		if err := rows.Scan(&msgIDStr, &emoji, &cnt, &reacted); err != nil {
			return nil, err
		}
		msgID := uuid.MustParse(msgIDStr)
		out[msgID] = append(out[msgID], Reaction{Emoji: emoji, Count: cnt, Reacted: reacted == 1})
	}
	return out, rows.Err()
}
