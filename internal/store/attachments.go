package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) CreateAttachment(ctx context.Context, a *Attachment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (id, filename, content_type, size, storage_path, uploader_id, message_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Filename, a.ContentType, a.Size, a.StoragePath, a.UploaderID.String(), uuidPtrStr(a.MessageID), a.CreatedAt)
	return err
}

// LinkAttachmentsToMessage atomically claims the given attachment ids
// for messageID, but only those still unclaimed (message_id IS NULL)
// and owned by uploaderID, preventing a race where two requests attach
// the same upload to different messages. Ids that fail the predicate
// (stale, already claimed, or not owned by uploaderID) are silently
// dropped rather than failing the whole batch -- the caller links and
// attaches whatever subset actually matched.
func (s *Store) LinkAttachmentsToMessage(ctx context.Context, messageID, uploaderID uuid.UUID, attachmentIDs []uuid.UUID) ([]Attachment, error) {
	if len(attachmentIDs) == 0 {
		return nil, nil
	}
	placeholders, idArgs := idPlaceholders(attachmentIDs)
	args := append([]any{messageID.String()}, idArgs...)
	args = append(args, uploaderID.String())

	if _, err := s.db.ExecContext(ctx,
		`UPDATE attachments SET message_id = ?
		 WHERE id IN (`+placeholders+`) AND uploader_id = ? AND message_id IS NULL`,
		args...); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content_type, size, storage_path, uploader_id, message_id, created_at
		 FROM attachments WHERE message_id = ?`, messageID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttachments(rows)
}

func scanAttachments(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Attachment, error) {
	var out []Attachment
	for rows.Next() {
		var a Attachment
		var idStr, uploaderID string
		var messageID *string
		if err := rows.Scan(&idStr, &a.Filename, &a.ContentType, &a.Size, &a.StoragePath, &uploaderID, &messageID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ID = uuid.MustParse(idStr)
		a.UploaderID = uuid.MustParse(uploaderID)
		if messageID != nil {
			mid := uuid.MustParse(*messageID)
			a.MessageID = &mid
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAttachmentsForMessages(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idPlaceholders(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content_type, size, storage_path, uploader_id, message_id, created_at
		 FROM attachments WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := scanAttachments(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]Attachment)
	for _, a := range list {
		out[*a.MessageID] = append(out[*a.MessageID], a)
	}
	return out, nil
}

func (s *Store) GetAttachmentByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, size, storage_path, uploader_id, message_id, created_at
		 FROM attachments WHERE id = ?`, id.String())
	var a Attachment
	var idStr, uploaderID string
	var messageID *string
	if err := row.Scan(&idStr, &a.Filename, &a.ContentType, &a.Size, &a.StoragePath, &uploaderID, &messageID, &a.CreatedAt); err != nil {
		return nil, wrapErr(err, "Attachment not found")
	}
	a.ID = id
	a.UploaderID = uuid.MustParse(uploaderID)
	if messageID != nil {
		mid := uuid.MustParse(*messageID)
		a.MessageID = &mid
	}
	return &a, nil
}
