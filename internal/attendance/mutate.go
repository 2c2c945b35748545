package attendance

// Outcome tells what a toggle did to a collection.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeRemoved  Outcome = "removed"
	OutcomeReplaced Outcome = "replaced"
)

// MarkDay applies toggle semantics for a whole-day mark and returns the new collection.
// Marking the same status twice removes the entry; a different status replaces it in place.
func MarkDay(entries []DayEntry, date string, status Status) ([]DayEntry, Outcome) {
	out := make([]DayEntry, 0, len(entries)+1)
	outcome := OutcomeInserted
	for _, e := range entries {
		if e.Date != date {
			out = append(out, e)
			continue
		}
		if e.Status == status {
			outcome = OutcomeRemoved
			continue
		}
		outcome = OutcomeReplaced
		e.Status = status
		out = append(out, e)
	}
	if outcome == OutcomeInserted {
		out = append(out, DayEntry{Date: date, Status: status})
	}
	return out, outcome
}

// MarkSubject applies the same toggle semantics scoped to (date, subject, slot).
func MarkSubject(entries []SubjectEntry, date, subjectName string, status Status, slotID string) ([]SubjectEntry, Outcome) {
	key := SubjectKey(date, subjectName, slotID)
	out := make([]SubjectEntry, 0, len(entries)+1)
	outcome := OutcomeInserted
	for _, e := range entries {
		if subjectEntryKey(e) != key {
			out = append(out, e)
			continue
		}
		if e.Status == status {
			outcome = OutcomeRemoved
			continue
		}
		outcome = OutcomeReplaced
		e.Status = status
		out = append(out, e)
	}
	if outcome == OutcomeInserted {
		out = append(out, SubjectEntry{
			ID:          key,
			Date:        date,
			SubjectID:   subjectName,
			SubjectName: subjectName,
			Status:      status,
			SlotID:      slotID,
		})
	}
	return out, outcome
}

// entries loaded from older stores may carry arbitrary ids, so identity is recomputed.
func subjectEntryKey(e SubjectEntry) string {
	return SubjectKey(e.Date, e.SubjectName, e.SlotID)
}

// UniqueDays keeps the last entry for each date, preserving first-seen order.
func UniqueDays(entries []DayEntry) []DayEntry {
	idx := make(map[string]int, len(entries))
	out := make([]DayEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" {
			continue
		}
		if i, ok := idx[e.Date]; ok {
			out[i] = e
			continue
		}
		idx[e.Date] = len(out)
		out = append(out, e)
	}
	return out
}
