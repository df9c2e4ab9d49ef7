package timeutil

import "time"

// Morning truncates now to midnight in loc. The result is the natural key for
// "one report per day": every run within the same local day maps to the same
// instant. A nil loc means now's own location.
func Morning(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = now.Location()
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats t as the report document id (YYYY-MM-DD).
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
