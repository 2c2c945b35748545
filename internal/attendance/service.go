package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nodue/internal/metrics"
)

// Collection names one independently persisted record set.
type Collection string

const (
	CollectionProfile   Collection = "profile"
	CollectionTimetable Collection = "timetable"
	CollectionDays      Collection = "day_attendance"
	CollectionSubjects  Collection = "subject_attendance"
)

// Collections lists every collection in sync order.
var Collections = []Collection{CollectionProfile, CollectionTimetable, CollectionDays, CollectionSubjects}

// Store persists whole collections. Save replaces the stored collection.
type Store interface {
	LoadProfile(ctx context.Context) (*Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
	LoadTimetable(ctx context.Context) ([]DaySlot, error)
	SaveTimetable(ctx context.Context, slots []DaySlot) error
	LoadDays(ctx context.Context) ([]DayEntry, error)
	SaveDays(ctx context.Context, days []DayEntry) error
	LoadSubjects(ctx context.Context) ([]SubjectEntry, error)
	SaveSubjects(ctx context.Context, entries []SubjectEntry) error
	ClearAll(ctx context.Context) error
}

// Notifier propagates a changed collection, typically to the sync bridge.
type Notifier interface {
	Changed(ctx context.Context, c Collection, snap Snapshot) error
}

// Notice is a non-fatal problem reported alongside a successful action.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	NoticePersistFailed = "persist_failed"
	NoticeSyncFailed    = "sync_failed"
)

// ProfileInput creates a profile. A nil goal means DefaultGoal.
type ProfileInput struct {
	Name            string `json:"name" binding:"required"`
	InstitutionName string `json:"institution_name" binding:"required"`
	Semester        string `json:"semester" binding:"required"`
	AttendanceGoal  *int   `json:"attendance_goal"`
	UseAdvancedMode bool   `json:"use_advanced_mode"`
}

// ProfilePatch updates the fields that are set.
type ProfilePatch struct {
	Name            *string `json:"name"`
	InstitutionName *string `json:"institution_name"`
	Semester        *string `json:"semester"`
	AttendanceGoal  *int    `json:"attendance_goal"`
	UseAdvancedMode *bool   `json:"use_advanced_mode"`
}

// SubjectMark is a request to toggle one subject occurrence.
type SubjectMark struct {
	Date        string `json:"date" binding:"required"`
	SubjectName string `json:"subject_name" binding:"required"`
	Status      string `json:"status" binding:"required"`
	SlotID      string `json:"slot_id"`
}

// Dashboard is the aggregated view of the current state.
type Dashboard struct {
	Profile      Profile       `json:"profile"`
	Stats        Stats         `json:"stats"`
	AdvancedMode bool          `json:"advanced_mode"`
	Subjects     []SubjectRate `json:"subjects,omitempty"`
}

// Service owns the in-memory application state. Every mutation updates memory
// first, then persists the affected collection, then notifies the sync side.
type Service struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	now      func() time.Time
	state    Snapshot

	// sendMu orders notifications. It is taken while mu is held and released
	// once the notifier returns, so readers never wait on the sync side.
	sendMu sync.Mutex
}

// NewService creates a service over store. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// Load reads every collection from the store.
func (s *Service) Load(ctx context.Context) error {
	profile, err := s.store.LoadProfile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	slots, err := s.store.LoadTimetable(ctx)
	if err != nil {
		return fmt.Errorf("load timetable: %w", err)
	}
	days, err := s.store.LoadDays(ctx)
	if err != nil {
		return fmt.Errorf("load day attendance: %w", err)
	}
	subjects, err := s.store.LoadSubjects(ctx)
	if err != nil {
		return fmt.Errorf("load subject attendance: %w", err)
	}
	if profile != nil {
		profile.AttendanceGoal = ClampGoal(profile.AttendanceGoal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Snapshot{
		Profile:   profile,
		Timetable: slots,
		Days:      UniqueDays(days),
		Subjects:  subjects,
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

func (s *Service) copyState() Snapshot {
	out := Snapshot{
		Timetable: append([]DaySlot(nil), s.state.Timetable...),
		Days:      append([]DayEntry(nil), s.state.Days...),
		Subjects:  append([]SubjectEntry(nil), s.state.Subjects...),
	}
	if s.state.Profile != nil {
		p := *s.state.Profile
		out.Profile = &p
	}
	return out
}

// Profile returns the current profile.
func (s *Service) Profile() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Profile == nil {
		return Profile{}, ErrNoProfile
	}
	return *s.state.Profile, nil
}

// CreateProfile creates or overwrites the profile, keeping any linked account.
func (s *Service) CreateProfile(ctx context.Context, in ProfileInput) (Profile, []Notice) {
	goal := DefaultGoal
	if in.AttendanceGoal != nil {
		goal = ClampGoal(*in.AttendanceGoal)
	}
	p := Profile{
		Name:            strings.TrimSpace(in.Name),
		InstitutionName: strings.TrimSpace(in.InstitutionName),
		Semester:        strings.TrimSpace(in.Semester),
		AttendanceGoal:  goal,
		UseAdvancedMode: in.UseAdvancedMode,
	}

	notices, _ := s.update(ctx, func() (Collection, error) {
		if s.state.Profile != nil {
			p.Email = s.state.Profile.Email
			p.IsSynced = s.state.Profile.IsSynced
		}
		s.state.Profile = &p
		return CollectionProfile, nil
	})
	return p, notices
}

// UpdateProfile applies a patch. The goal is clamped to [0,100].
func (s *Service) UpdateProfile(ctx context.Context, patch ProfilePatch) (Profile, []Notice, error) {
	var p Profile
	notices, err := s.update(ctx, func() (Collection, error) {
		if s.state.Profile == nil {
			return "", ErrNoProfile
		}
		p = s.patched(patch)
		s.state.Profile = &p
		return CollectionProfile, nil
	})
	if err != nil {
		return Profile{}, nil, err
	}
	return p, notices, nil
}

// patched applies patch to a copy of the current profile. Callers hold s.mu.
func (s *Service) patched(patch ProfilePatch) Profile {
	p := *s.state.Profile
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.InstitutionName != nil {
		p.InstitutionName = strings.TrimSpace(*patch.InstitutionName)
	}
	if patch.Semester != nil {
		p.Semester = strings.TrimSpace(*patch.Semester)
	}
	if patch.AttendanceGoal != nil {
		p.AttendanceGoal = ClampGoal(*patch.AttendanceGoal)
	}
	if patch.UseAdvancedMode != nil {
		p.UseAdvancedMode = *patch.UseAdvancedMode
	}
	return p
}

// UpdateGoal sets the attendance goal, clamped to [0,100].
func (s *Service) UpdateGoal(ctx context.Context, goal int) (Profile, []Notice, error) {
	return s.UpdateProfile(ctx, ProfilePatch{AttendanceGoal: &goal})
}

// SetAdvancedMode switches subject-level tracking on or off.
func (s *Service) SetAdvancedMode(ctx context.Context, on bool) (Profile, []Notice, error) {
	return s.UpdateProfile(ctx, ProfilePatch{UseAdvancedMode: &on})
}

// ToggleAdvancedMode flips subject-level tracking.
func (s *Service) ToggleAdvancedMode(ctx context.Context) (Profile, []Notice, error) {
	p, err := s.Profile()
	if err != nil {
		return Profile{}, nil, err
	}
	return s.SetAdvancedMode(ctx, !p.UseAdvancedMode)
}

// MarkDay toggles the whole-day mark of date.
func (s *Service) MarkDay(ctx context.Context, date string, status Status) (Outcome, []Notice, error) {
	date = strings.TrimSpace(date)
	if err := s.checkMarkable(date); err != nil {
		return "", nil, err
	}
	if !status.Valid() {
		return "", nil, ErrInvalidStatus
	}

	var outcome Outcome
	notices, _ := s.update(ctx, func() (Collection, error) {
		s.state.Days, outcome = MarkDay(s.state.Days, date, status)
		return CollectionDays, nil
	})
	metrics.Marks.WithLabelValues(string(CollectionDays), string(outcome)).Inc()
	return outcome, notices, nil
}

// MarkSubject toggles the mark of one subject occurrence.
func (s *Service) MarkSubject(ctx context.Context, m SubjectMark) (Outcome, []Notice, error) {
	date := strings.TrimSpace(m.Date)
	if err := s.checkMarkable(date); err != nil {
		return "", nil, err
	}
	status, err := ParseStatus(m.Status)
	if err != nil {
		return "", nil, err
	}
	name := strings.TrimSpace(m.SubjectName)
	if name == "" {
		return "", nil, ErrSubjectRequired
	}

	slotID := strings.TrimSpace(m.SlotID)
	var outcome Outcome
	notices, _ := s.update(ctx, func() (Collection, error) {
		s.state.Subjects, outcome = MarkSubject(s.state.Subjects, date, name, status, slotID)
		return CollectionSubjects, nil
	})
	metrics.Marks.WithLabelValues(string(CollectionSubjects), string(outcome)).Inc()
	return outcome, notices, nil
}

// checkMarkable rejects malformed and future dates.
func (s *Service) checkMarkable(date string) error {
	t, err := ParseDate(date)
	if err != nil {
		return err
	}
	now := s.now()
	today, _ := time.Parse(DateLayout, now.Format(DateLayout))
	if t.After(today) {
		return ErrFutureDate
	}
	return nil
}

// AddSlot adds one timetable slot.
func (s *Service) AddSlot(ctx context.Context, in SlotInput) (DaySlot, []Notice, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return DaySlot{}, nil, err
	}

	var slot DaySlot
	notices, _ := s.update(ctx, func() (Collection, error) {
		if in.Color == "" {
			in.Color = SubjectColors[len(s.state.Timetable)%len(SubjectColors)]
		}
		slot = newSlot(in)
		s.state.Timetable = append(s.state.Timetable, slot)
		return CollectionTimetable, nil
	})
	return slot, notices, nil
}

// DeleteSlot removes a slot by id. Marks recorded against it are kept.
func (s *Service) DeleteSlot(ctx context.Context, id string) ([]Notice, error) {
	return s.update(ctx, func() (Collection, error) {
		out := make([]DaySlot, 0, len(s.state.Timetable))
		found := false
		for _, slot := range s.state.Timetable {
			if slot.ID == id {
				found = true
				continue
			}
			out = append(out, slot)
		}
		if !found {
			return "", ErrSlotNotFound
		}
		s.state.Timetable = out
		return CollectionTimetable, nil
	})
}

// ImportSlots adds every slot or none. A subject already in the timetable keeps
// its color; new subjects take the next palette colors.
func (s *Service) ImportSlots(ctx context.Context, in []SlotInput) ([]DaySlot, []Notice, error) {
	if len(in) == 0 {
		return nil, nil, ErrEmptyImport
	}
	for i := range in {
		in[i].normalize()
		if err := in[i].Validate(); err != nil {
			return nil, nil, fmt.Errorf("slot %d: %w", i+1, err)
		}
	}

	added := make([]DaySlot, 0, len(in))
	notices, _ := s.update(ctx, func() (Collection, error) {
		colors := make(map[string]string)
		for _, slot := range s.state.Timetable {
			if _, ok := colors[slot.SubjectName]; !ok {
				colors[slot.SubjectName] = slot.Color
			}
		}
		for _, item := range in {
			if item.Color == "" {
				c, ok := colors[item.SubjectName]
				if !ok {
					c = SubjectColors[len(colors)%len(SubjectColors)]
					colors[item.SubjectName] = c
				}
				item.Color = c
			}
			added = append(added, newSlot(item))
		}
		s.state.Timetable = append(s.state.Timetable, added...)
		return CollectionTimetable, nil
	})
	return added, notices, nil
}

func newSlot(in SlotInput) DaySlot {
	return DaySlot{
		ID:          uuid.NewString(),
		SubjectName: in.SubjectName,
		Day:         in.Day,
		StartTime:   canonicalClock(in.StartTime),
		EndTime:     canonicalClock(in.EndTime),
		Faculty:     in.Faculty,
		Color:       in.Color,
	}
}

// Timetable returns the slots ordered by weekday and start time.
func (s *Service) Timetable() []DaySlot {
	s.mu.Lock()
	slots := append([]DaySlot(nil), s.state.Timetable...)
	s.mu.Unlock()
	SortSlots(slots)
	return slots
}

// Days returns the whole-day marks.
func (s *Service) Days() []DayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DayEntry(nil), s.state.Days...)
}

// Subjects returns the subject marks, optionally only those of date.
func (s *Service) Subjects(date string) []SubjectEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubjectEntry, 0, len(s.state.Subjects))
	for _, e := range s.state.Subjects {
		if date == "" || e.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Dashboard computes stats and, in advanced mode, the subject breakdown.
func (s *Service) Dashboard() (Dashboard, error) {
	snap := s.Snapshot()
	if snap.Profile == nil {
		return Dashboard{}, ErrNoProfile
	}
	d := Dashboard{
		Profile:      *snap.Profile,
		Stats:        ComputeStats(snap.Days, snap.Profile.AttendanceGoal),
		AdvancedMode: snap.Profile.UseAdvancedMode,
	}
	if d.AdvancedMode {
		d.Subjects = SubjectBreakdown(snap.Subjects, snap.Timetable, snap.Profile.AttendanceGoal)
	}
	return d, nil
}

// Schedule lists the subjects to mark on date.
func (s *Service) Schedule(date string) ([]ScheduledSubject, error) {
	snap := s.Snapshot()
	return ScheduledSubjectsForDate(strings.TrimSpace(date), snap.Timetable, snap.Subjects)
}

// Reset drops every local record and returns to the no-profile state.
func (s *Service) Reset(ctx context.Context) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Snapshot{}
	if err := s.store.ClearAll(ctx); err != nil {
		log.Printf("clear local store failed: %v", err)
		return []Notice{{Code: NoticePersistFailed, Message: "local data could not be cleared: " + err.Error()}}
	}
	return nil
}

// LinkAccount records the signed-in email on the profile.
func (s *Service) LinkAccount(ctx context.Context, email string) []Notice {
	notices, _ := s.update(ctx, func() (Collection, error) {
		if s.state.Profile == nil {
			return "", nil
		}
		p := *s.state.Profile
		p.Email = email
		p.IsSynced = true
		s.state.Profile = &p
		return CollectionProfile, nil
	})
	return notices
}

// Restore replaces the whole state, e.g. with data pulled from the remote side.
// Nothing is pushed back to the notifier.
func (s *Service) Restore(ctx context.Context, snap Snapshot) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Profile != nil {
		snap.Profile.AttendanceGoal = ClampGoal(snap.Profile.AttendanceGoal)
	}
	snap.Days = UniqueDays(snap.Days)
	s.state = snap
	var notices []Notice
	for _, c := range Collections {
		if c == CollectionProfile && snap.Profile == nil {
			continue
		}
		if n := s.persist(ctx, c); n != nil {
			notices = append(notices, *n)
		}
	}
	return notices
}

// SyncAll re-sends every collection to the notifier.
func (s *Service) SyncAll(ctx context.Context) []Notice {
	s.mu.Lock()
	var cs []Collection
	for _, c := range Collections {
		if c == CollectionProfile && s.state.Profile == nil {
			continue
		}
		cs = append(cs, c)
	}
	out := s.outgoing(cs...)
	s.mu.Unlock()
	return s.send(ctx, out)
}

// update runs fn under s.mu. When fn names a changed collection it is
// persisted before the lock is released and sent to the notifier after.
func (s *Service) update(ctx context.Context, fn func() (Collection, error)) ([]Notice, error) {
	s.mu.Lock()
	c, err := fn()
	if err != nil || c == "" {
		s.mu.Unlock()
		return nil, err
	}
	var notices []Notice
	if n := s.persist(ctx, c); n != nil {
		notices = append(notices, *n)
	}
	out := s.outgoing(c)
	s.mu.Unlock()
	return append(notices, s.send(ctx, out)...), nil
}

// pending is a state copy waiting to be handed to the notifier.
type pending struct {
	collections []Collection
	snap        Snapshot
}

// outgoing captures the state for cs and takes sendMu. Callers hold s.mu and
// must pass the result to send.
func (s *Service) outgoing(cs ...Collection) *pending {
	if s.notifier == nil || len(cs) == 0 {
		return nil
	}
	s.sendMu.Lock()
	return &pending{collections: cs, snap: s.copyState()}
}

func (s *Service) send(ctx context.Context, p *pending) []Notice {
	if p == nil {
		return nil
	}
	defer s.sendMu.Unlock()
	var notices []Notice
	for _, c := range p.collections {
		if err := s.notifier.Changed(ctx, c, p.snap); err != nil {
			log.Printf("sync %s failed: %v", c, err)
			notices = append(notices, Notice{Code: NoticeSyncFailed, Message: fmt.Sprintf("%s not synced: %v", c, err)})
		}
	}
	return notices
}

func (s *Service) persist(ctx context.Context, c Collection) *Notice {
	var err error
	switch c {
	case CollectionProfile:
		if s.state.Profile != nil {
			err = s.store.SaveProfile(ctx, *s.state.Profile)
		}
	case CollectionTimetable:
		err = s.store.SaveTimetable(ctx, s.state.Timetable)
	case CollectionDays:
		err = s.store.SaveDays(ctx, s.state.Days)
	case CollectionSubjects:
		err = s.store.SaveSubjects(ctx, s.state.Subjects)
	}
	if err == nil {
		return nil
	}
	log.Printf("persist %s failed: %v", c, err)
	metrics.PersistFailures.WithLabelValues(string(c)).Inc()
	return &Notice{Code: NoticePersistFailed, Message: fmt.Sprintf("%s kept in memory but not saved: %v", c, err)}
}
