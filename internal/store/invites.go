package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

func (s *Store) CreateInvite(ctx context.Context, inv *Invite) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (id, code, created_by, max_uses, uses, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, 0, ?)`,
		inv.ID.String(), inv.Code, inv.CreatedBy.String(), inv.MaxUses, inv.ExpiresAt, inv.CreatedAt)
	return err
}

func (s *Store) GetInviteByCode(ctx context.Context, code string) (*Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, created_by, max_uses, uses, expires_at, revoked, created_at
		 FROM invites WHERE code = ?`, code)
	return scanInvite(row)
}

func scanInvite(row *sql.Row) (*Invite, error) {
	var inv Invite
	var idStr, createdBy string
	var revoked int
	if err := row.Scan(&idStr, &inv.Code, &createdBy, &inv.MaxUses, &inv.Uses, &inv.ExpiresAt, &revoked, &inv.CreatedAt); err != nil {
		return nil, wrapErr(err, "Invite not found")
	}
	inv.ID = uuid.MustParse(idStr)
	inv.CreatedBy = uuid.MustParse(createdBy)
	inv.Revoked = revoked == 1
	return &inv, nil
}

// UseInviteCode atomically increments the invite's use count only if
// it is not revoked, not expired, and under its max-use limit, so
// concurrent signups cannot both win the last slot of a capped invite.
func (s *Store) UseInviteCode(ctx context.Context, code string, now int64) (*Invite, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET uses = uses + 1
		 WHERE code = ?
		   AND revoked = 0
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND (max_uses IS NULL OR uses < max_uses)`,
		code, now)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, notFound("Invite is invalid, expired, revoked, or has reached its use limit")
	}
	return s.GetInviteByCode(ctx, code)
}

func (s *Store) RevokeInvite(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invites SET revoked = 1 WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "Invite not found")
}

func (s *Store) GetAllInvites(ctx context.Context) ([]Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, created_by, max_uses, uses, expires_at, revoked, created_at
		 FROM invites ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invite
	for rows.Next() {
		var inv Invite
		var idStr, createdBy string
		var revoked int
		if err := rows.Scan(&idStr, &inv.Code, &createdBy, &inv.MaxUses, &inv.Uses, &inv.ExpiresAt, &revoked, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.ID = uuid.MustParse(idStr)
		inv.CreatedBy = uuid.MustParse(createdBy)
		inv.Revoked = revoked == 1
		out = append(out, inv)
	}
	return out, rows.Err()
}
