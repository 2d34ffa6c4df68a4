package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UpsertLinkPreview inserts a link preview keyed by URL, or refreshes
// an existing row's metadata, returning the row's id either way.
func (s *Store) UpsertLinkPreview(ctx context.Context, lp *LinkPreview) (uuid.UUID, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO link_previews (id, url, title, description, image_url, site_name, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   image_url = excluded.image_url,
		   site_name = excluded.site_name,
		   fetched_at = excluded.fetched_at`,
		lp.ID.String(), lp.URL, lp.Title, lp.Description, lp.ImageURL, lp.SiteName, lp.FetchedAt)
	if err != nil {
		return uuid.Nil, err
	}

	var idStr string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM link_previews WHERE url = ?`, lp.URL).Scan(&idStr); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(idStr)
}

func (s *Store) LinkPreviewToMessage(ctx context.Context, messageID, previewID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_link_previews (message_id, preview_id) VALUES (?, ?)`,
		messageID.String(), previewID.String())
	return err
}

func (s *Store) GetLinkPreviewsForMessages(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]LinkPreview, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idPlaceholders(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mlp.message_id, lp.id, lp.url, lp.title, lp.description, lp.image_url, lp.site_name, lp.fetched_at
		 FROM message_link_previews mlp
		 JOIN link_previews lp ON lp.id = mlp.preview_id
		 WHERE mlp.message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]LinkPreview)
	for rows.Next() {
		var msgIDStr, idStr string
		var lp LinkPreview
		if err := rows.Scan(&msgIDStr, &idStr, &lp.URL, &lp.Title, &lp.Description, &lp.ImageURL, &lp.SiteName, &lp.FetchedAt); err != nil {
			return nil, err
		}
		lp.ID = uuid.MustParse(idStr)
		msgID := uuid.MustParse(msgIDStr)
		out[msgID] = append(out[msgID], lp)
	}
	return out, rows.Err()
}

func (s *Store) GetLinkPreviewByURL(ctx context.Context, url string) (*LinkPreview, error) {
	var lp LinkPreview
	var idStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, description, image_url, site_name, fetched_at FROM link_previews WHERE url = ?`, url).
		Scan(&idStr, &lp.URL, &lp.Title, &lp.Description, &lp.ImageURL, &lp.SiteName, &lp.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lp.ID = uuid.MustParse(idStr)
	return &lp, nil
}
