package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for every entry.
const DateLayout = "2006-01-02"

// ClockLayout is the wall clock format used by timetable slots.
const ClockLayout = "15:04"

// DefaultGoal is applied to new profiles that do not carry a goal.
const DefaultGoal = 75

// manualSlot stands in for the slot id of subject entries not tied to a timetable slot.
const manualSlot = "manual"

// Status is an attendance mark.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusHoliday Status = "HOLIDAY"
)

// Valid reports whether s is one of the supported marks.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusHoliday:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes user input into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

var (
	ErrInvalidStatus   = errors.New("status must be PRESENT, ABSENT or HOLIDAY")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrFutureDate      = errors.New("future dates cannot be marked")
	ErrNoProfile       = errors.New("profile not created")
	ErrSlotNotFound    = errors.New("timetable slot not found")
	ErrInvalidSlot     = errors.New("invalid timetable slot")
	ErrEmptyImport     = errors.New("nothing to import")
	ErrSubjectRequired = errors.New("subject name required")
)

// DaySlot is one recurring weekly lecture. Day is 0 (Sunday) through 6 (Saturday).
type DaySlot struct {
	ID          string `json:"id"`
	SubjectName string `json:"subject_name"`
	Day         int    `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Faculty     string `json:"faculty,omitempty"`
	Color       string `json:"color"`
}

// DayEntry is a whole-day mark. Date is the natural key.
type DayEntry struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// SubjectEntry is the mark for one subject occurrence on one date.
type SubjectEntry struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Status      Status `json:"status"`
	SlotID      string `json:"slot_id,omitempty"`
}

// Profile is the single user profile of a session.
type Profile struct {
	Name            string `json:"name"`
	InstitutionName string `json:"institution_name"`
	Semester        string `json:"semester"`
	AttendanceGoal  int    `json:"attendance_goal"`
	UseAdvancedMode bool   `json:"use_advanced_mode"`
	Email           string `json:"email,omitempty"`
	IsSynced        bool   `json:"is_synced,omitempty"`
}

// ClampGoal bounds a goal percentage to [0,100].
func ClampGoal(goal int) int {
	if goal < 0 {
		return 0
	}
	if goal > 100 {
		return 100
	}
	return goal
}

// SubjectKey derives the identity of a subject entry.
func SubjectKey(date, subjectName, slotID string) string {
	if slotID == "" {
		slotID = manualSlot
	}
	return date + "|" + subjectName + "|" + slotID
}

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return t, nil
}

// SubjectColors is the palette handed out to slots created without a color.
var SubjectColors = []string{
	"#3b82f6", "#ef4444", "#10b981", "#f59e0b", "#8b5cf6",
	"#ec4899", "#06b6d4", "#84cc16", "#6366f1", "#f43f5e",
}

// Snapshot is a copy of every collection of a session.
type Snapshot struct {
	Profile   *Profile       `json:"profile,omitempty"`
	Timetable []DaySlot      `json:"timetable"`
	Days      []DayEntry     `json:"days"`
	Subjects  []SubjectEntry `json:"subjects"`
}
