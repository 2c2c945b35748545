package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for the remote Postgres backend using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(ctx)
}

// Migrate creates the remote tables when missing. Every attendance table is
// scoped by user_id.
func (d *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT false
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id           TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		name              TEXT NOT NULL,
		institution_name  TEXT NOT NULL DEFAULT '',
		semester          TEXT NOT NULL DEFAULT '',
		attendance_goal   INTEGER NOT NULL DEFAULT 75,
		use_advanced_mode BOOLEAN NOT NULL DEFAULT false,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS timetable_slots (
		user_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		pos          INTEGER NOT NULL,
		id           TEXT NOT NULL,
		subject_name TEXT NOT NULL,
		day          SMALLINT NOT NULL,
		start_time   TEXT NOT NULL,
		end_time     TEXT NOT NULL,
		faculty      TEXT NOT NULL DEFAULT '',
		color        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS day_attendance (
		user_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		pos     INTEGER NOT NULL,
		date    TEXT NOT NULL,
		status  TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE TABLE IF NOT EXISTS subject_attendance (
		user_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		pos          INTEGER NOT NULL,
		id           TEXT NOT NULL,
		date         TEXT NOT NULL,
		subject_id   TEXT NOT NULL,
		subject_name TEXT NOT NULL,
		status       TEXT NOT NULL,
		slot_id      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, id)
	);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
