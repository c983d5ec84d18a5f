// Package schedule maps batching policies onto concrete delivery instants.
package schedule

import (
	"time"

	"notification-engine/internal/model"
)

// At returns the delivery time for a batch interval policy evaluated at now
// in the user's location. Interval policies round up to the next boundary
// that is a whole multiple of the interval since the epoch, so concurrent
// callers inside the same window converge on one instant.
func At(interval model.BatchInterval, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	switch interval.Kind {
	case model.BatchMinutes:
		return roundUp(now, time.Duration(interval.Every)*time.Minute)
	case model.BatchHours:
		return roundUp(now, time.Duration(interval.Every)*time.Hour)
	case model.BatchEndOfDay:
		return endOfDay(now, loc)
	case model.BatchCustom:
		if interval.At != nil {
			return *interval.At
		}
		return now
	default: // immediate
		return now
	}
}

// roundUp advances t to the next multiple of step since the Unix epoch.
// A t already on a boundary moves to the following one, so "every N minutes"
// never schedules in the past or at the very instant of creation.
func roundUp(t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	boundary := t.Truncate(step).Add(step)
	return boundary
}

// endOfDay returns the last instant of t's calendar day in loc.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}
