package cloudsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nodue/internal/attendance"
	"nodue/internal/store"
)

// ErrUnknownCollection is returned for jobs naming no known collection.
var ErrUnknownCollection = errors.New("unknown collection")

// Bridge mirrors collections to the remote Postgres database. Lists are replaced
// per user by deleting every row and inserting the new set in one transaction.
type Bridge struct {
	db *sql.DB
}

// NewBridge builds a bridge on an open remote database.
func NewBridge(db *store.DB) *Bridge {
	return &Bridge{db: db.Client}
}

// Apply writes the collection carried by job.
func (b *Bridge) Apply(ctx context.Context, job Job) error {
	if job.UserID == "" {
		return errors.New("job without user")
	}
	switch job.Collection {
	case attendance.CollectionProfile:
		if job.Profile == nil {
			return nil
		}
		return b.UpsertProfile(ctx, job.UserID, *job.Profile)
	case attendance.CollectionTimetable:
		return b.ReplaceTimetable(ctx, job.UserID, job.Timetable)
	case attendance.CollectionDays:
		return b.ReplaceDays(ctx, job.UserID, job.Days)
	case attendance.CollectionSubjects:
		return b.ReplaceSubjects(ctx, job.UserID, job.Subjects)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCollection, job.Collection)
	}
}

// UpsertProfile inserts or updates the profile row of userID.
func (b *Bridge) UpsertProfile(ctx context.Context, userID string, p attendance.Profile) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, institution_name, semester, attendance_goal, use_advanced_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			institution_name = EXCLUDED.institution_name,
			semester = EXCLUDED.semester,
			attendance_goal = EXCLUDED.attendance_goal,
			use_advanced_mode = EXCLUDED.use_advanced_mode,
			updated_at = now()`,
		userID, p.Name, p.InstitutionName, p.Semester, p.AttendanceGoal, p.UseAdvancedMode,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ReplaceTimetable replaces every slot of userID.
func (b *Bridge) ReplaceTimetable(ctx context.Context, userID string, slots []attendance.DaySlot) error {
	return b.replace(ctx, "timetable_slots", userID,
		`INSERT INTO timetable_slots (user_id, pos, id, subject_name, day, start_time, end_time, faculty, color)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		len(slots), func(i int) []any {
			s := slots[i]
			return []any{userID, i, s.ID, s.SubjectName, s.Day, s.StartTime, s.EndTime, s.Faculty, s.Color}
		})
}

// ReplaceDays replaces every day mark of userID.
func (b *Bridge) ReplaceDays(ctx context.Context, userID string, days []attendance.DayEntry) error {
	return b.replace(ctx, "day_attendance", userID,
		`INSERT INTO day_attendance (user_id, pos, date, status) VALUES ($1, $2, $3, $4)`,
		len(days), func(i int) []any {
			return []any{userID, i, days[i].Date, string(days[i].Status)}
		})
}

// ReplaceSubjects replaces every subject mark of userID.
func (b *Bridge) ReplaceSubjects(ctx context.Context, userID string, entries []attendance.SubjectEntry) error {
	return b.replace(ctx, "subject_attendance", userID,
		`INSERT INTO subject_attendance (user_id, pos, id, date, subject_id, subject_name, status, slot_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		len(entries), func(i int) []any {
			e := entries[i]
			return []any{userID, i, e.ID, e.Date, e.SubjectID, e.SubjectName, string(e.Status), e.SlotID}
		})
}

func (b *Bridge) replace(ctx context.Context, table, userID, insert string, n int, row func(i int) []any) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if n > 0 {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", table, err)
		}
		defer stmt.Close()
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
				return fmt.Errorf("insert %s row %d: %w", table, i, err)
			}
		}
	}
	return tx.Commit()
}

// Pull reads every remote collection of userID. The profile is nil when the
// account never pushed one.
func (b *Bridge) Pull(ctx context.Context, userID string) (attendance.Snapshot, error) {
	var snap attendance.Snapshot

	var p attendance.Profile
	err := b.db.QueryRowContext(ctx, `
		SELECT p.name, p.institution_name, p.semester, p.attendance_goal, p.use_advanced_mode, a.email
		FROM profiles p JOIN accounts a ON a.id = p.user_id
		WHERE p.user_id = $1`, userID,
	).Scan(&p.Name, &p.InstitutionName, &p.Semester, &p.AttendanceGoal, &p.UseAdvancedMode, &p.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("pull profile: %w", err)
	default:
		p.IsSynced = true
		snap.Profile = &p
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, subject_name, day, start_time, end_time, faculty, color
		FROM timetable_slots WHERE user_id = $1 ORDER BY pos`, userID)
	if err != nil {
		return snap, fmt.Errorf("pull timetable: %w", err)
	}
	for rows.Next() {
		var s attendance.DaySlot
		if err := rows.Scan(&s.ID, &s.SubjectName, &s.Day, &s.StartTime, &s.EndTime, &s.Faculty, &s.Color); err != nil {
			rows.Close()
			return snap, fmt.Errorf("pull timetable: %w", err)
		}
		snap.Timetable = append(snap.Timetable, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("pull timetable: %w", err)
	}

	rows, err = b.db.QueryContext(ctx, `SELECT date, status FROM day_attendance WHERE user_id = $1 ORDER BY pos`, userID)
	if err != nil {
		return snap, fmt.Errorf("pull day attendance: %w", err)
	}
	for rows.Next() {
		var d attendance.DayEntry
		if err := rows.Scan(&d.Date, &d.Status); err != nil {
			rows.Close()
			return snap, fmt.Errorf("pull day attendance: %w", err)
		}
		snap.Days = append(snap.Days, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("pull day attendance: %w", err)
	}

	rows, err = b.db.QueryContext(ctx, `
		SELECT id, date, subject_id, subject_name, status, slot_id
		FROM subject_attendance WHERE user_id = $1 ORDER BY pos`, userID)
	if err != nil {
		return snap, fmt.Errorf("pull subject attendance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e attendance.SubjectEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.SubjectID, &e.SubjectName, &e.Status, &e.SlotID); err != nil {
			return snap, fmt.Errorf("pull subject attendance: %w", err)
		}
		snap.Subjects = append(snap.Subjects, e)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("pull subject attendance: %w", err)
	}
	return snap, nil
}
