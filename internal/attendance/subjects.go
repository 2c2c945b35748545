package attendance

import "sort"

// SubjectRate is the attendance rate of one timetable subject.
type SubjectRate struct {
	SubjectName  string  `json:"subject_name"`
	PresentCount int     `json:"present_count"`
	TotalCount   int     `json:"total_count"`
	Rate         float64 `json:"rate"`
	OnTrack      bool    `json:"on_track"`
}

// SubjectBreakdown rates every distinct subject of the timetable, in timetable
// order. Subjects with no marks are still reported with a zero total.
// HOLIDAY marks are excluded from a subject's total.
func SubjectBreakdown(entries []SubjectEntry, slots []DaySlot, goal int) []SubjectRate {
	type tally struct{ present, total int }
	counts := make(map[string]*tally)
	for _, e := range entries {
		if e.Status != StatusPresent && e.Status != StatusAbsent {
			continue
		}
		t, ok := counts[e.SubjectName]
		if !ok {
			t = &tally{}
			counts[e.SubjectName] = t
		}
		t.total++
		if e.Status == StatusPresent {
			t.present++
		}
	}

	seen := make(map[string]bool, len(slots))
	out := make([]SubjectRate, 0, len(slots))
	for _, slot := range slots {
		if seen[slot.SubjectName] {
			continue
		}
		seen[slot.SubjectName] = true
		r := SubjectRate{SubjectName: slot.SubjectName}
		if t, ok := counts[slot.SubjectName]; ok {
			r.PresentCount, r.TotalCount = t.present, t.total
		}
		if r.TotalCount > 0 {
			r.Rate = float64(r.PresentCount) / float64(r.TotalCount) * 100
		}
		r.OnTrack = meetsGoal(r.PresentCount, r.TotalCount, goal)
		out = append(out, r)
	}
	return out
}

// ScheduledSubject is one row of the subject-marking surface for a date.
type ScheduledSubject struct {
	SubjectName string  `json:"subject_name"`
	SlotID      string  `json:"slot_id,omitempty"`
	StartTime   string  `json:"start_time,omitempty"`
	EndTime     string  `json:"end_time,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// ScheduledSubjectsForDate lists the slots held on the weekday of date, merged
// with the marks recorded for that date. Marks bound to a slot update that slot's
// row; marks without a slot are appended as ad-hoc rows.
func ScheduledSubjectsForDate(date string, slots []DaySlot, entries []SubjectEntry) ([]ScheduledSubject, error) {
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	weekday := int(t.Weekday())

	daySlots := make([]DaySlot, 0, len(slots))
	for _, s := range slots {
		if s.Day == weekday {
			daySlots = append(daySlots, s)
		}
	}
	sort.SliceStable(daySlots, func(i, j int) bool { return daySlots[i].StartTime < daySlots[j].StartTime })

	out := make([]ScheduledSubject, 0, len(daySlots))
	bySlot := make(map[string]int, len(daySlots))
	for _, s := range daySlots {
		bySlot[s.ID] = len(out)
		out = append(out, ScheduledSubject{
			SubjectName: s.SubjectName,
			SlotID:      s.ID,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
		})
	}

	adHoc := make(map[string]int)
	for _, e := range entries {
		if e.Date != date {
			continue
		}
		status := e.Status
		if e.SlotID != "" {
			if i, ok := bySlot[e.SlotID]; ok {
				out[i].Status = &status
			}
			continue
		}
		if i, ok := adHoc[e.SubjectName]; ok {
			out[i].Status = &status
			continue
		}
		adHoc[e.SubjectName] = len(out)
		out = append(out, ScheduledSubject{SubjectName: e.SubjectName, Status: &status})
	}
	return out, nil
}

// SortSlots orders slots by weekday then start time.
func SortSlots(slots []DaySlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Day != slots[j].Day {
			return slots[i].Day < slots[j].Day
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}
