package service

import (
	"fmt"
	"time"

	"notification-engine/internal/model"
)

// InQuietHours reports whether now falls inside the user's local quiet
// window. A window whose start is after its end wraps past midnight:
// 22:00–06:00 covers [22:00, 24:00) and [00:00, 06:00].
func InQuietHours(q model.QuietHours, now time.Time) (bool, error) {
	if !q.Configured() {
		return false, nil
	}

	loc := time.UTC
	if q.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(q.Timezone)
		if err != nil {
			return false, fmt.Errorf("invalid quiet hours timezone %q: %w", q.Timezone, err)
		}
	}

	start, err := parseClock(q.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start <= end {
		return minute >= start && minute <= end, nil
	}
	// wrap past midnight
	return minute >= start || minute <= end, nil
}

// QuietHoursEnd returns the next instant the quiet window closes, used to
// defer immediate deliveries created inside it.
func QuietHoursEnd(q model.QuietHours, now time.Time) (time.Time, error) {
	loc := time.UTC
	if q.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(q.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid quiet hours timezone %q: %w", q.Timezone, err)
		}
	}

	end, err := parseClock(q.End)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	y, m, d := local.Date()
	endToday := time.Date(y, m, d, end/60, end%60, 0, 0, loc)
	if !endToday.After(local) {
		endToday = endToday.AddDate(0, 0, 1)
	}
	return endToday, nil
}

func parseClock(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", hhmm)
	}
	return h*60 + m, nil
}
