package leaderboard

import (
	"errors"
	"time"
)

// Period is the rolling scoring window for a leaderboard.
type Period string

const (
	// PeriodWeek scores activity since the most recent Sunday 00:00 local.
	PeriodWeek Period = "WEEK"
	// PeriodMonth scores activity since day 1 of the current month, 00:00 local.
	PeriodMonth Period = "MONTH"
)

// ErrInvalidPeriod is returned when a period is neither WEEK nor MONTH.
var ErrInvalidPeriod = errors.New("invalid score period")

// Periods lists every supported scoring period.
func Periods() []Period {
	return []Period{PeriodWeek, PeriodMonth}
}

// Valid reports whether p is a supported period.
func (p Period) Valid() bool {
	return p == PeriodWeek || p == PeriodMonth
}

// WindowStart resolves the deterministic window start for p relative to
// now, in now's location. It is a pure function of its inputs.
func (p Period) WindowStart(now time.Time) (time.Time, error) {
	switch p {
	case PeriodWeek:
		// time.Sunday == 0, so Weekday() is the day count since Sunday.
		start := now.AddDate(0, 0, -int(now.Weekday()))
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location()), nil
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, ErrInvalidPeriod
	}
}
