package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nodue/internal/attendance"
)

func openTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := OpenLocal(filepath.Join(t.TempDir(), "data", "nodue.db"))
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLocalProfileRoundTrip(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	p, err := l.LoadProfile(ctx)
	if err != nil || p != nil {
		t.Fatalf("empty store: profile=%v err=%v", p, err)
	}
	want := attendance.Profile{Name: "Asha", InstitutionName: "IIT", Semester: "4", AttendanceGoal: 80, UseAdvancedMode: true}
	if err := l.SaveProfile(ctx, want); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	want.Semester = "5"
	if err := l.SaveProfile(ctx, want); err != nil {
		t.Fatalf("SaveProfile overwrite: %v", err)
	}
	got, err := l.LoadProfile(ctx)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLocalCollectionsReplaceWhole(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	days := []attendance.DayEntry{
		{Date: "2024-03-05", Status: attendance.StatusAbsent},
		{Date: "2024-03-04", Status: attendance.StatusPresent},
	}
	if err := l.SaveDays(ctx, days); err != nil {
		t.Fatalf("SaveDays: %v", err)
	}
	if err := l.SaveDays(ctx, days[:1]); err != nil {
		t.Fatalf("SaveDays: %v", err)
	}
	got, err := l.LoadDays(ctx)
	if err != nil {
		t.Fatalf("LoadDays: %v", err)
	}
	if len(got) != 1 || got[0] != days[0] {
		t.Fatalf("days not replaced: %v", got)
	}

	slots := []attendance.DaySlot{
		{ID: "b", SubjectName: "Physics", Day: 2, StartTime: "11:00", EndTime: "12:00", Color: "#ef4444"},
		{ID: "a", SubjectName: "Math", Day: 1, StartTime: "09:00", EndTime: "10:00", Faculty: "Dr. Rao", Color: "#3b82f6"},
	}
	if err := l.SaveTimetable(ctx, slots); err != nil {
		t.Fatalf("SaveTimetable: %v", err)
	}
	gotSlots, err := l.LoadTimetable(ctx)
	if err != nil {
		t.Fatalf("LoadTimetable: %v", err)
	}
	if len(gotSlots) != 2 || gotSlots[0] != slots[0] || gotSlots[1] != slots[1] {
		t.Fatalf("timetable order not kept: %v", gotSlots)
	}

	entries := []attendance.SubjectEntry{
		{ID: "2024-03-04|Math|a", Date: "2024-03-04", SubjectID: "Math", SubjectName: "Math", Status: attendance.StatusPresent, SlotID: "a"},
		{ID: "2024-03-04|Lab|manual", Date: "2024-03-04", SubjectID: "Lab", SubjectName: "Lab", Status: attendance.StatusHoliday},
	}
	if err := l.SaveSubjects(ctx, entries); err != nil {
		t.Fatalf("SaveSubjects: %v", err)
	}
	gotEntries, err := l.LoadSubjects(ctx)
	if err != nil {
		t.Fatalf("LoadSubjects: %v", err)
	}
	if len(gotEntries) != 2 || gotEntries[1] != entries[1] {
		t.Fatalf("subjects: %v", gotEntries)
	}
}

func TestLocalSessionAndClearAll(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	s := Session{UserID: "u1", Email: "a@example.com", AccessToken: "at", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	if err := l.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := l.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got == nil || got.UserID != "u1" || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("session: %+v", got)
	}

	if err := l.SaveProfile(ctx, attendance.Profile{Name: "Asha", AttendanceGoal: 75}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := l.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if p, _ := l.LoadProfile(ctx); p != nil {
		t.Fatalf("profile survived ClearAll")
	}
	if s, _ := l.LoadSession(ctx); s != nil {
		t.Fatalf("session survived ClearAll")
	}
}

func TestLocalServesAttendanceService(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	svc := attendance.NewService(l, nil)
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc.CreateProfile(ctx, attendance.ProfileInput{Name: "Asha", InstitutionName: "IIT", Semester: "4"})
	if _, notices, err := svc.MarkDay(ctx, "2024-03-04", attendance.StatusPresent); err != nil || len(notices) != 0 {
		t.Fatalf("MarkDay: %v %v", notices, err)
	}

	reloaded := attendance.NewService(l, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if days := reloaded.Days(); len(days) != 1 {
		t.Fatalf("days not persisted: %v", days)
	}
	if p, err := reloaded.Profile(); err != nil || p.AttendanceGoal != attendance.DefaultGoal {
		t.Fatalf("profile not persisted: %+v %v", p, err)
	}
}
