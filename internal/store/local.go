package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nodue/internal/attendance"
)

// Local is the on-device record store. Each collection is saved whole.
type Local struct {
	db *sql.DB
}

// Session is the signed-in account of this device, if any.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// OpenLocal opens (and creates) the sqlite file at path.
func OpenLocal(path string) (*Local, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local db: %w", err)
	}
	if err := migrateLocal(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local db: %w", err)
	}
	return &Local{db: db}, nil
}

func migrateLocal(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profile (
		id                INTEGER PRIMARY KEY CHECK (id = 1),
		name              TEXT NOT NULL,
		institution_name  TEXT NOT NULL DEFAULT '',
		semester          TEXT NOT NULL DEFAULT '',
		attendance_goal   INTEGER NOT NULL DEFAULT 75,
		use_advanced_mode INTEGER NOT NULL DEFAULT 0,
		email             TEXT NOT NULL DEFAULT '',
		is_synced         INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS timetable (
		pos          INTEGER NOT NULL,
		id           TEXT PRIMARY KEY,
		subject_name TEXT NOT NULL,
		day          INTEGER NOT NULL,
		start_time   TEXT NOT NULL,
		end_time     TEXT NOT NULL,
		faculty      TEXT NOT NULL DEFAULT '',
		color        TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS day_attendance (
		pos    INTEGER NOT NULL,
		date   TEXT PRIMARY KEY,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subject_attendance (
		pos          INTEGER NOT NULL,
		id           TEXT PRIMARY KEY,
		date         TEXT NOT NULL,
		subject_id   TEXT NOT NULL,
		subject_name TEXT NOT NULL,
		status       TEXT NOT NULL,
		slot_id      TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_subject_attendance_date ON subject_attendance(date);

	CREATE TABLE IF NOT EXISTS session (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		user_id       TEXT NOT NULL,
		email         TEXT NOT NULL,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at    DATETIME NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (l *Local) Close() error { return l.db.Close() }

// Healthy verifies the local database answers.
func (l *Local) Healthy(ctx context.Context) bool {
	return l.db.PingContext(ctx) == nil
}

// -------- Profile --------

func (l *Local) LoadProfile(ctx context.Context) (*attendance.Profile, error) {
	var p attendance.Profile
	err := l.db.QueryRowContext(ctx,
		`SELECT name, institution_name, semester, attendance_goal, use_advanced_mode, email, is_synced FROM profile WHERE id = 1`,
	).Scan(&p.Name, &p.InstitutionName, &p.Semester, &p.AttendanceGoal, &p.UseAdvancedMode, &p.Email, &p.IsSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Local) SaveProfile(ctx context.Context, p attendance.Profile) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO profile (id, name, institution_name, semester, attendance_goal, use_advanced_mode, email, is_synced)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.InstitutionName, p.Semester, p.AttendanceGoal, p.UseAdvancedMode, p.Email, p.IsSynced,
	)
	return err
}

// -------- Timetable --------

func (l *Local) LoadTimetable(ctx context.Context) ([]attendance.DaySlot, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, subject_name, day, start_time, end_time, faculty, color FROM timetable ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.DaySlot
	for rows.Next() {
		var s attendance.DaySlot
		if err := rows.Scan(&s.ID, &s.SubjectName, &s.Day, &s.StartTime, &s.EndTime, &s.Faculty, &s.Color); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (l *Local) SaveTimetable(ctx context.Context, slots []attendance.DaySlot) error {
	return l.replace(ctx, "timetable", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO timetable (pos, id, subject_name, day, start_time, end_time, faculty, color) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, s := range slots {
			if _, err := stmt.ExecContext(ctx, i, s.ID, s.SubjectName, s.Day, s.StartTime, s.EndTime, s.Faculty, s.Color); err != nil {
				return err
			}
		}
		return nil
	})
}

// -------- Day attendance --------

func (l *Local) LoadDays(ctx context.Context) ([]attendance.DayEntry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT date, status FROM day_attendance ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.DayEntry
	for rows.Next() {
		var d attendance.DayEntry
		if err := rows.Scan(&d.Date, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (l *Local) SaveDays(ctx context.Context, days []attendance.DayEntry) error {
	return l.replace(ctx, "day_attendance", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO day_attendance (pos, date, status) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, d := range days {
			if _, err := stmt.ExecContext(ctx, i, d.Date, string(d.Status)); err != nil {
				return err
			}
		}
		return nil
	})
}

// -------- Subject attendance --------

func (l *Local) LoadSubjects(ctx context.Context) ([]attendance.SubjectEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, date, subject_id, subject_name, status, slot_id FROM subject_attendance ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.SubjectEntry
	for rows.Next() {
		var e attendance.SubjectEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.SubjectID, &e.SubjectName, &e.Status, &e.SlotID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Local) SaveSubjects(ctx context.Context, entries []attendance.SubjectEntry) error {
	return l.replace(ctx, "subject_attendance", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO subject_attendance (pos, id, date, subject_id, subject_name, status, slot_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, i, e.ID, e.Date, e.SubjectID, e.SubjectName, string(e.Status), e.SlotID); err != nil {
				return err
			}
		}
		return nil
	})
}

// -------- Session --------

// LoadSession returns the stored session, or nil when signed out.
func (l *Local) LoadSession(ctx context.Context) (*Session, error) {
	var s Session
	err := l.db.QueryRowContext(ctx,
		`SELECT user_id, email, access_token, refresh_token, expires_at FROM session WHERE id = 1`,
	).Scan(&s.UserID, &s.Email, &s.AccessToken, &s.RefreshToken, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *Local) SaveSession(ctx context.Context, s Session) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session (id, user_id, email, access_token, refresh_token, expires_at) VALUES (1, ?, ?, ?, ?, ?)`,
		s.UserID, s.Email, s.AccessToken, s.RefreshToken, s.ExpiresAt.UTC(),
	)
	return err
}

func (l *Local) ClearSession(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM session`)
	return err
}

// ClearAll wipes every table, including the session.
func (l *Local) ClearAll(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"profile", "timetable", "day_attendance", "subject_attendance", "session"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// replace deletes every row of table and lets fill insert the new set, atomically.
func (l *Local) replace(ctx context.Context, table string, fill func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err := fill(tx); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return tx.Commit()
}
