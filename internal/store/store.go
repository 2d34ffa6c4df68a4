// Package store provides persistent server state backed by an embedded
// SQLite database. It owns the database lifecycle and exposes typed
// CRUD functions for every persisted entity.
//
// Migration design: SQL statements are kept in the [migrations] slice
// as ordered strings. Each is applied exactly once; the applied
// version is tracked in the schema_migrations table. To add a
// migration, append a new string — never edit or reorder existing
// entries.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iohzrd/echora/internal/logging"

	_ "modernc.org/sqlite"
)

var log = logging.New("store")

// migrations holds the ordered list of DDL/DML statements that bring
// the schema up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — users
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'member',
		avatar_path   TEXT,
		display_name  TEXT,
		created_at    INTEGER NOT NULL
	)`,
	// v2 — channels
	`CREATE TABLE IF NOT EXISTS channels (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		channel_type TEXT NOT NULL DEFAULT 'text',
		created_by   TEXT,
		created_at   INTEGER NOT NULL
	)`,
	// v3 — messages
	`CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		content          TEXT NOT NULL,
		author_id        TEXT NOT NULL,
		author_username  TEXT NOT NULL,
		channel_id       TEXT NOT NULL,
		created_at       INTEGER NOT NULL,
		edited_at        INTEGER,
		reply_to_id      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at)`,
	// v5 — reactions
	`CREATE TABLE IF NOT EXISTS reactions (
		message_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		emoji      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (message_id, user_id, emoji)
	)`,
	// v6 — link previews
	`CREATE TABLE IF NOT EXISTS link_previews (
		id          TEXT PRIMARY KEY,
		url         TEXT NOT NULL UNIQUE,
		title       TEXT,
		description TEXT,
		image_url   TEXT,
		site_name   TEXT,
		fetched_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message_link_previews (
		message_id TEXT NOT NULL,
		preview_id TEXT NOT NULL,
		PRIMARY KEY (message_id, preview_id)
	)`,
	// v8 — attachments
	`CREATE TABLE IF NOT EXISTS attachments (
		id           TEXT PRIMARY KEY,
		filename     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size         INTEGER NOT NULL,
		storage_path TEXT NOT NULL,
		uploader_id  TEXT NOT NULL,
		message_id   TEXT,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id)`,
	// v10 — bans
	`CREATE TABLE IF NOT EXISTS bans (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE,
		banned_by  TEXT NOT NULL,
		reason     TEXT,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	// v11 — mutes
	`CREATE TABLE IF NOT EXISTS mutes (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE,
		muted_by   TEXT NOT NULL,
		reason     TEXT,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	// v12 — invites
	`CREATE TABLE IF NOT EXISTS invites (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL UNIQUE,
		created_by TEXT NOT NULL,
		max_uses   INTEGER,
		uses       INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER,
		revoked    INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	// v13 — server settings
	`CREATE TABLE IF NOT EXISTS server_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	// v14 — moderation log
	`CREATE TABLE IF NOT EXISTS moderation_log (
		id             TEXT PRIMARY KEY,
		action         TEXT NOT NULL,
		moderator_id   TEXT NOT NULL,
		target_user_id TEXT NOT NULL,
		reason         TEXT,
		details        TEXT,
		created_at     INTEGER NOT NULL
	)`,
	// v15 — WebAuthn passkeys
	`CREATE TABLE IF NOT EXISTS user_passkeys (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		credential_name TEXT NOT NULL,
		credential_id   TEXT NOT NULL,
		credential_json TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		last_used_at    INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_passkeys_user ON user_passkeys(user_id)`,
	// v17 — custom emojis
	`CREATE TABLE IF NOT EXISTS custom_emojis (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE COLLATE NOCASE,
		content_type TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		uploader_id  TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	)`,
	// v18 — soundboard
	`CREATE TABLE IF NOT EXISTS soundboard_sounds (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		duration_ms  INTEGER NOT NULL,
		uploader_id  TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS soundboard_favorites (
		user_id    TEXT NOT NULL,
		sound_id   TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, sound_id)
	)`,
	// v20 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes typed CRUD functions.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * 60 * 1e9)
	if path == ":memory:" {
		// Each SQLite connection to ":memory:" opens its own empty
		// database, so the pool is held to one connection that is never
		// closed for idleness.
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Warn("WAL mode", "err", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Warn("busy_timeout", "err", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		log.Warn("foreign_keys", "err", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for components (e.g. the CLI) that
// need raw access; prefer the typed functions below elsewhere.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	var current int
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	for i, stmt := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d: %w", version, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, unixepoch())`, version,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", version, err)
		}
		log.Info("applied migration", "version", version)
	}
	return nil
}

// Optimize runs SQLite's PRAGMA optimize, intended to be called
// periodically (e.g. hourly) from a background maintenance loop.
func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA optimize`)
	return err
}

func requireRowsAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(msg)
	}
	return nil
}
