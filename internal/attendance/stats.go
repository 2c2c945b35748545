package attendance

// ForecastKind classifies the projection against the goal.
type ForecastKind string

const (
	ForecastNoData          ForecastKind = "no_data"
	ForecastNeedsAttendance ForecastKind = "needs_attendance"
	ForecastUnreachable     ForecastKind = "unreachable"
	ForecastCanSkip         ForecastKind = "can_skip"
	ForecastOnTrack         ForecastKind = "on_track"
	ForecastUnlimited       ForecastKind = "unlimited"
)

// Forecast is the number of sessions needed to reach the goal, or that can be
// missed while staying at it. Sessions is only meaningful for needs_attendance
// and can_skip.
type Forecast struct {
	Kind     ForecastKind `json:"kind"`
	Sessions int          `json:"sessions"`
}

// Stats summarizes whole-day attendance.
type Stats struct {
	Present     int      `json:"present"`
	Absent      int      `json:"absent"`
	Holidays    int      `json:"holidays"`
	WorkingDays int      `json:"working_days"`
	Percentage  float64  `json:"percentage"`
	Goal        int      `json:"goal"`
	OnTrack     bool     `json:"on_track"`
	Forecast    Forecast `json:"forecast"`
}

// ComputeStats counts marks and projects the forecast. HOLIDAY is not a working day.
func ComputeStats(days []DayEntry, goal int) Stats {
	var s Stats
	for _, d := range days {
		switch d.Status {
		case StatusPresent:
			s.Present++
		case StatusAbsent:
			s.Absent++
		case StatusHoliday:
			s.Holidays++
		}
	}
	s.WorkingDays = s.Present + s.Absent
	s.Goal = goal
	if s.WorkingDays > 0 {
		s.Percentage = float64(s.Present) / float64(s.WorkingDays) * 100
	}
	s.OnTrack = meetsGoal(s.Present, s.WorkingDays, goal)
	s.Forecast = ForecastFor(s.Present, s.WorkingDays, goal)
	return s
}

// ForecastFor projects present out of working sessions against goal.
//
// Below the goal it returns the least n with (present+n)/(working+n) >= goal/100.
// At or above it returns the largest m with present/(working+m) >= goal/100.
func ForecastFor(present, working, goal int) Forecast {
	if working <= 0 {
		return Forecast{Kind: ForecastNoData}
	}
	if !meetsGoal(present, working, goal) {
		if goal >= 100 {
			return Forecast{Kind: ForecastUnreachable}
		}
		num := goal*working - 100*present
		den := 100 - goal
		return Forecast{Kind: ForecastNeedsAttendance, Sessions: (num + den - 1) / den}
	}
	if goal <= 0 {
		return Forecast{Kind: ForecastUnlimited}
	}
	m := (100*present - goal*working) / goal
	if m <= 0 {
		return Forecast{Kind: ForecastOnTrack}
	}
	return Forecast{Kind: ForecastCanSkip, Sessions: m}
}

// meetsGoal reports present/total*100 >= goal; an empty total counts as 0%.
func meetsGoal(present, total, goal int) bool {
	if total <= 0 {
		return goal <= 0
	}
	return 100*present >= goal*total
}
