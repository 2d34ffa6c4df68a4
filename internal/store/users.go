package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/apperror"
)

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		return mapUserInsertErr(err)
	}
	return nil
}

// CreateUserWithInvite consumes inviteCode and inserts u in the same
// transaction, so a revoked/expired/fully-used code can never leave a
// user row behind. Pass an empty inviteCode to skip the invite check
// (open registration, or the server's first user).
func (s *Store) CreateUserWithInvite(ctx context.Context, u *User, inviteCode string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if inviteCode != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE invites SET uses = uses + 1
			 WHERE code = ?
			   AND revoked = 0
			   AND (expires_at IS NULL OR expires_at > ?)
			   AND (max_uses IS NULL OR uses < max_uses)`,
			inviteCode, u.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.BadRequestf("Invalid, expired, or fully used invite code")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	); err != nil {
		return mapUserInsertErr(err)
	}

	return tx.Commit()
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, created_at, avatar_path, display_name
		 FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, created_at, avatar_path, display_name
		 FROM users WHERE username = ? COLLATE NOCASE`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var id string
	var role string
	if err := row.Scan(&id, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.AvatarPath, &u.DisplayName); err != nil {
		return nil, wrapErr(err, "User not found")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	u.ID = parsed
	u.Role = Role(role)
	return &u, nil
}

func (s *Store) GetUserCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) GetUserRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id.String()).Scan(&role)
	if err != nil {
		return "", wrapErr(err, "User not found")
	}
	return Role(role), nil
}

func (s *Store) SetUserRole(ctx context.Context, id uuid.UUID, role Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "User not found")
}

func (s *Store) GetAllUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email, role, created_at, avatar_path FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserSummary
	for rows.Next() {
		var us UserSummary
		var id, role string
		var avatarPath *string
		if err := rows.Scan(&id, &us.Username, &us.Email, &role, &us.CreatedAt, &avatarPath); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		us.ID = parsed
		us.Role = Role(role)
		us.AvatarURL = AvatarURLFromPath(parsed, avatarPath)
		out = append(out, us)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserAvatar(ctx context.Context, id uuid.UUID, avatarPath *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET avatar_path = ? WHERE id = ?`, avatarPath, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "User not found")
}

func (s *Store) UpdateUserDisplayName(ctx context.Context, id uuid.UUID, displayName *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET display_name = ? WHERE id = ?`, displayName, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "User not found")
}

func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res, "User not found")
}

// AvatarURLFromPath derives the public avatar URL from a storage path,
// or nil if the user has no avatar set.
func AvatarURLFromPath(userID uuid.UUID, path *string) *string {
	if path == nil || *path == "" {
		return nil
	}
	url := "/api/avatars/" + userID.String()
	return &url
}
