package board

import "time"

// DefaultMaxArrivalsWindow is the default upper bound, in minutes, of the arrivals window.
const DefaultMaxArrivalsWindow = 60

// MinutesUntil returns the whole minutes from now until t, rounded down.
func MinutesUntil(now, t time.Time) int {
	d := t.Sub(now)
	m := d / time.Minute
	if d%time.Minute < 0 {
		m--
	}
	return int(m)
}

// InWindow reports whether t is at most one minute in the past and at most maxMinutes ahead.
func InWindow(now, t time.Time, maxMinutes int) bool {
	m := MinutesUntil(now, t)
	return m >= -1 && m <= maxMinutes
}

// AtPlatform reports whether a live arrival is due now or has just arrived.
func AtPlatform(now time.Time, a *Arrival) bool {
	if !a.IsRealtime {
		return false
	}
	m := MinutesUntil(now, a.ArrivalTime)
	return m >= -2 && m <= 0
}

// ScheduledTime returns the next occurrence of a GTFS time of day.
//
// The time of day is placed on today's date in loc. Times of 24 hours or more belong to the
// following day. If the result is still before now, the occurrence tomorrow is used.
func ScheduledTime(now time.Time, timeOfDay time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	days := 0
	for timeOfDay >= 24*time.Hour {
		timeOfDay -= 24 * time.Hour
		days++
	}
	h := int(timeOfDay / time.Hour)
	m := int(timeOfDay % time.Hour / time.Minute)
	s := int(timeOfDay % time.Minute / time.Second)
	t := time.Date(local.Year(), local.Month(), local.Day()+days, h, m, s, 0, loc)
	if t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
