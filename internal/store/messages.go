package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/iohzrd/echora/internal/validation"
)

// GetMessages returns messages for a channel in chronological order,
// optionally before a given timestamp (exclusive), and concurrently
// batch-enriches the page with reply previews, reactions, link
// previews, and attachments -- mirroring the reference persistence
// facade's N+1-avoidance pattern rather than one query per message.
func (s *Store) GetMessages(ctx context.Context, channelID uuid.UUID, limit int, before *int64, requestingUser uuid.UUID) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if before != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT * FROM (
				SELECT id, content, author_id, author_username, channel_id, created_at, edited_at, reply_to_id
				FROM messages WHERE channel_id = ? AND created_at < ? ORDER BY created_at DESC LIMIT ?
			) sub ORDER BY created_at ASC`, channelID.String(), *before, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT * FROM (
				SELECT id, content, author_id, author_username, channel_id, created_at, edited_at, reply_to_id
				FROM messages WHERE channel_id = ? ORDER BY created_at DESC LIMIT ?
			) sub ORDER BY created_at ASC`, channelID.String(), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := s.enrichMessages(ctx, messages, requestingUser); err != nil {
		return nil, err
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var id, authorID, channelID string
		var replyTo sql.NullString
		if err := rows.Scan(&id, &m.Content, &authorID, &m.AuthorUsername, &channelID, &m.CreatedAt, &m.EditedAt, &replyTo); err != nil {
			return nil, err
		}
		m.ID = uuid.MustParse(id)
		m.AuthorID = uuid.MustParse(authorID)
		m.ChannelID = uuid.MustParse(channelID)
		if replyTo.Valid {
			rid := uuid.MustParse(replyTo.String)
			m.ReplyToID = &rid
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// enrichMessages fetches reply previews, reactions, link previews, and
// attachments for the given messages concurrently and attaches them.
func (s *Store) enrichMessages(ctx context.Context, messages []Message, requestingUser uuid.UUID) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(messages))
	var replyIDs []uuid.UUID
	for i, m := range messages {
		ids[i] = m.ID
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	var (
		wg          sync.WaitGroup
		replyErr, reactErr, previewErr, attachErr error
		replies     map[uuid.UUID]ReplyPreview
		reactions   map[uuid.UUID][]Reaction
		previews    map[uuid.UUID][]LinkPreview
		attachments map[uuid.UUID][]Attachment
	)

	if len(replyIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies, replyErr = s.GetReplyPreviews(ctx, replyIDs)
		}()
	}
	wg.Add(3)
	go func() {
		defer wg.Done()
		reactions, reactErr = s.GetReactionsForMessages(ctx, ids, requestingUser)
	}()
	go func() {
		defer wg.Done()
		previews, previewErr = s.GetLinkPreviewsForMessages(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		attachments, attachErr = s.GetAttachmentsForMessages(ctx, ids)
	}()
	wg.Wait()

	for _, err := range []error{replyErr, reactErr, previewErr, attachErr} {
		if err != nil {
			return err
		}
	}

	for i := range messages {
		m := &messages[i]
		if m.ReplyToID != nil {
			if rp, ok := replies[*m.ReplyToID]; ok {
				m.ReplyTo = &rp
			}
		}
		if rs, ok := reactions[m.ID]; ok && len(rs) > 0 {
			m.Reactions = rs
		}
		if lp, ok := previews[m.ID]; ok && len(lp) > 0 {
			m.LinkPreviews = lp
		}
		if at, ok := attachments[m.ID]; ok && len(at) > 0 {
			m.Attachments = at
		}
	}
	return nil
}

func (s *Store) GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, author_id, author_username, channel_id, created_at, edited_at, reply_to_id
		 FROM messages WHERE id = ?`, id.String())
	var m Message
	var idStr, authorID, channelID string
	var replyTo sql.NullString
	if err := row.Scan(&idStr, &m.Content, &authorID, &m.AuthorUsername, &channelID, &m.CreatedAt, &m.EditedAt, &replyTo); err != nil {
		return nil, wrapErr(err, "Message not found")
	}
	m.ID = id
	m.AuthorID = uuid.MustParse(authorID)
	m.ChannelID = uuid.MustParse(channelID)
	if replyTo.Valid {
		rid := uuid.MustParse(replyTo.String)
		m.ReplyToID = &rid
	}
	return &m, nil
}

// GetFullMessageByID loads a single message with all enrichments, for
// returning a just-created or just-edited message to a REST caller.
func (s *Store) GetFullMessageByID(ctx context.Context, id uuid.UUID, requestingUser uuid.UUID) (*Message, error) {
	m, err := s.GetMessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := []Message{*m}
	if err := s.enrichMessages(ctx, msgs, requestingUser); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *Store) CreateMessage(ctx context.Context, m *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, content, author_id, author_username, channel_id, created_at, reply_to_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Content, m.AuthorID.String(), m.AuthorUsername, m.ChannelID.String(), m.CreatedAt, uuidPtrStr(m.ReplyToID))
	return err
}

func (s *Store) UpdateMessage(ctx context.Context, id uuid.UUID, content string, editedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`, content, editedAt, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Message not found")
}

func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Message not found")
}

func (s *Store) GetReplyPreviews(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ReplyPreview, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idPlaceholders(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_username, content FROM messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]ReplyPreview)
	for rows.Next() {
		var idStr, author, content string
		if err := rows.Scan(&idStr, &author, &content); err != nil {
			return nil, err
		}
		id := uuid.MustParse(idStr)
		out[id] = ReplyPreview{ID: id, Author: author, Content: validation.Truncate(content, validation.ReplyPreviewLength)}
	}
	return out, rows.Err()
}

func (s *Store) GetReplyPreview(ctx context.Context, id uuid.UUID) (*ReplyPreview, error) {
	var author, content string
	err := s.db.QueryRowContext(ctx, `SELECT author_username, content FROM messages WHERE id = ?`, id.String()).
		Scan(&author, &content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rp := ReplyPreview{ID: id, Author: author, Content: validation.Truncate(content, validation.ReplyPreviewLength)}
	return &rp, nil
}

func idPlaceholders(ids []uuid.UUID) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = "?"
		args[i] = id.String()
	}
	return strings.Join(parts, ","), args
}
