package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) CreatePasskey(ctx context.Context, pk *Passkey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_passkeys (id, user_id, credential_name, credential_id, credential_json, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pk.ID.String(), pk.UserID.String(), pk.CredentialName, pk.CredentialID, pk.CredentialJSON, pk.CreatedAt, pk.LastUsedAt)
	return err
}

func (s *Store) GetPasskeysForUser(ctx context.Context, userID uuid.UUID) ([]Passkey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, credential_name, credential_id, credential_json, created_at, last_used_at
		 FROM user_passkeys WHERE user_id = ? ORDER BY created_at ASC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPasskeys(rows)
}

func (s *Store) GetPasskeyByCredentialID(ctx context.Context, credentialID string) (*Passkey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, credential_name, credential_id, credential_json, created_at, last_used_at
		 FROM user_passkeys WHERE credential_id = ?`, credentialID)
	var pk Passkey
	var idStr, userID string
	if err := row.Scan(&idStr, &userID, &pk.CredentialName, &pk.CredentialID, &pk.CredentialJSON, &pk.CreatedAt, &pk.LastUsedAt); err != nil {
		return nil, wrapErr(err, "Passkey not found")
	}
	pk.ID = uuid.MustParse(idStr)
	pk.UserID = uuid.MustParse(userID)
	return &pk, nil
}

func (s *Store) UpdatePasskeyUsage(ctx context.Context, id uuid.UUID, credentialJSON string, lastUsedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_passkeys SET credential_json = ?, last_used_at = ? WHERE id = ?`,
		credentialJSON, lastUsedAt, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Passkey not found")
}

func (s *Store) DeletePasskey(ctx context.Context, id, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_passkeys WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Passkey not found")
}

func scanPasskeys(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Passkey, error) {
	var out []Passkey
	for rows.Next() {
		var pk Passkey
		var idStr, userID string
		if err := rows.Scan(&idStr, &userID, &pk.CredentialName, &pk.CredentialID, &pk.CredentialJSON, &pk.CreatedAt, &pk.LastUsedAt); err != nil {
			return nil, err
		}
		pk.ID = uuid.MustParse(idStr)
		pk.UserID = uuid.MustParse(userID)
		out = append(out, pk)
	}
	return out, rows.Err()
}
