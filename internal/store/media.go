package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) CreateCustomEmoji(ctx context.Context, e *CustomEmoji) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_emojis (id, name, content_type, storage_path, uploader_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Name, e.ContentType, e.StoragePath, e.UploaderID.String(), e.CreatedAt)
	if err != nil {
		return mapUniqueErr(err, "name", "An emoji with this name already exists")
	}
	return nil
}

func (s *Store) GetCustomEmojis(ctx context.Context) ([]CustomEmoji, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, content_type, storage_path, uploader_id, created_at
		 FROM custom_emojis ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomEmoji
	for rows.Next() {
		var e CustomEmoji
		var idStr, uploaderID string
		if err := rows.Scan(&idStr, &e.Name, &e.ContentType, &e.StoragePath, &uploaderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = uuid.MustParse(idStr)
		e.UploaderID = uuid.MustParse(uploaderID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetCustomEmojiByID(ctx context.Context, id uuid.UUID) (*CustomEmoji, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, content_type, storage_path, uploader_id, created_at FROM custom_emojis WHERE id = ?`, id.String())
	var e CustomEmoji
	var idStr, uploaderID string
	if err := row.Scan(&idStr, &e.Name, &e.ContentType, &e.StoragePath, &uploaderID, &e.CreatedAt); err != nil {
		return nil, wrapErr(err, "Emoji not found")
	}
	e.ID = id
	e.UploaderID = uuid.MustParse(uploaderID)
	return &e, nil
}

func (s *Store) DeleteCustomEmoji(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_emojis WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Emoji not found")
}

func (s *Store) CreateSoundboardSound(ctx context.Context, snd *SoundboardSound) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO soundboard_sounds (id, name, storage_path, duration_ms, uploader_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snd.ID.String(), snd.Name, snd.StoragePath, snd.DurationMS, snd.UploaderID.String(), snd.CreatedAt)
	return err
}

func (s *Store) GetSoundboardSounds(ctx context.Context) ([]SoundboardSound, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, storage_path, duration_ms, uploader_id, created_at
		 FROM soundboard_sounds ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SoundboardSound
	for rows.Next() {
		var snd SoundboardSound
		var idStr, uploaderID string
		if err := rows.Scan(&idStr, &snd.Name, &snd.StoragePath, &snd.DurationMS, &uploaderID, &snd.CreatedAt); err != nil {
			return nil, err
		}
		snd.ID = uuid.MustParse(idStr)
		snd.UploaderID = uuid.MustParse(uploaderID)
		out = append(out, snd)
	}
	return out, rows.Err()
}

func (s *Store) GetSoundboardSoundByID(ctx context.Context, id uuid.UUID) (*SoundboardSound, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, storage_path, duration_ms, uploader_id, created_at FROM soundboard_sounds WHERE id = ?`, id.String())
	var snd SoundboardSound
	var idStr, uploaderID string
	if err := row.Scan(&idStr, &snd.Name, &snd.StoragePath, &snd.DurationMS, &uploaderID, &snd.CreatedAt); err != nil {
		return nil, wrapErr(err, "Sound not found")
	}
	snd.ID = id
	snd.UploaderID = uuid.MustParse(uploaderID)
	return &snd, nil
}

func (s *Store) DeleteSoundboardSound(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM soundboard_sounds WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Sound not found")
}

func (s *Store) AddSoundboardFavorite(ctx context.Context, userID, soundID uuid.UUID, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO soundboard_favorites (user_id, sound_id, created_at) VALUES (?, ?, ?)`,
		userID.String(), soundID.String(), now)
	return err
}

func (s *Store) RemoveSoundboardFavorite(ctx context.Context, userID, soundID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM soundboard_favorites WHERE user_id = ? AND sound_id = ?`, userID.String(), soundID.String())
	return err
}

func (s *Store) GetSoundboardFavorites(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sound_id FROM soundboard_favorites WHERE user_id = ? ORDER BY created_at ASC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		out = append(out, uuid.MustParse(idStr))
	}
	return out, rows.Err()
}
