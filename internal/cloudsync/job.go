package cloudsync

import "nodue/internal/attendance"

// JobType is the queue message type carrying a Job.
const JobType = "sync"

// Job is one collection of one user to be mirrored remotely. Only the field
// matching Collection is set.
type Job struct {
	UserID     string                    `json:"user_id"`
	Collection attendance.Collection     `json:"collection"`
	Profile    *attendance.Profile       `json:"profile,omitempty"`
	Timetable  []attendance.DaySlot      `json:"timetable,omitempty"`
	Days       []attendance.DayEntry     `json:"days,omitempty"`
	Subjects   []attendance.SubjectEntry `json:"subjects,omitempty"`
}

// NewJob picks the collection c out of snap.
func NewJob(userID string, c attendance.Collection, snap attendance.Snapshot) Job {
	j := Job{UserID: userID, Collection: c}
	switch c {
	case attendance.CollectionProfile:
		j.Profile = snap.Profile
	case attendance.CollectionTimetable:
		j.Timetable = snap.Timetable
	case attendance.CollectionDays:
		j.Days = snap.Days
	case attendance.CollectionSubjects:
		j.Subjects = snap.Subjects
	}
	return j
}
