package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) GetChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, channel_type FROM channels ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var c Channel
		var id, ctype string
		if err := rows.Scan(&id, &c.Name, &ctype); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		c.ID = parsed
		c.ChannelType = ChannelType(ctype)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetChannelByID(ctx context.Context, id uuid.UUID) (*Channel, error) {
	var c Channel
	var idStr, ctype string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, channel_type FROM channels WHERE id = ?`, id.String()).
		Scan(&idStr, &c.Name, &ctype)
	if err != nil {
		return nil, wrapErr(err, "Channel not found")
	}
	c.ID = id
	c.ChannelType = ChannelType(ctype)
	return &c, nil
}

func (s *Store) GetChannelType(ctx context.Context, id uuid.UUID) (ChannelType, error) {
	var ctype string
	err := s.db.QueryRowContext(ctx, `SELECT channel_type FROM channels WHERE id = ?`, id.String()).Scan(&ctype)
	if err != nil {
		return "", wrapErr(err, "Channel not found")
	}
	return ChannelType(ctype), nil
}

func (s *Store) CreateChannel(ctx context.Context, c *Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, channel_type, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, string(c.ChannelType), uuidPtrStr(c.CreatedBy), c.CreatedAt)
	return err
}

func (s *Store) UpdateChannel(ctx context.Context, id uuid.UUID, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET name = ? WHERE id = ?`, name, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Channel not found")
}

func (s *Store) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, id.String()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if err := requireRowsAffected(res, "Channel not found"); err != nil {
		return err
	}
	return tx.Commit()
}

func uuidPtrStr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
