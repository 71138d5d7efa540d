package query

import (
	"time"
)

// DatePreset names a calendar window relative to "now".
type DatePreset string

const (
	PresetToday       DatePreset = "today"
	PresetLast24Hours DatePreset = "last24Hours"
	PresetLast3Days   DatePreset = "last3Days"
	PresetThisWeek    DatePreset = "thisWeek"
	PresetLastWeek    DatePreset = "lastWeek"
	Preset2WeeksAgo   DatePreset = "2WeeksAgo"
	PresetThisMonth   DatePreset = "thisMonth"
	PresetLastMonth   DatePreset = "lastMonth"
	PresetThisQuarter DatePreset = "thisQuarter"
	PresetLast6Months DatePreset = "last6Months"
	PresetThisYear    DatePreset = "thisYear"
	PresetLastYear    DatePreset = "lastYear"
)

// Range resolves preset against now in UTC. Both bounds are inclusive;
// weeks start on Sunday.
func (preset DatePreset) Range(now time.Time) (from, to time.Time, ok bool) {
	now = now.UTC()
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	week := day.AddDate(0, 0, -int(day.Weekday()))
	month := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	quarter := time.Date(y, ((m-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
	year := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)

	switch preset {
	case PresetToday:
		return day, endBefore(day.AddDate(0, 0, 1)), true
	case PresetLast24Hours:
		return now.Add(-24 * time.Hour), now, true
	case PresetLast3Days:
		return now.Add(-72 * time.Hour), now, true
	case PresetThisWeek:
		return week, endBefore(week.AddDate(0, 0, 7)), true
	case PresetLastWeek:
		return week.AddDate(0, 0, -7), endBefore(week), true
	case Preset2WeeksAgo:
		return week.AddDate(0, 0, -14), endBefore(week.AddDate(0, 0, -7)), true
	case PresetThisMonth:
		return month, endBefore(month.AddDate(0, 1, 0)), true
	case PresetLastMonth:
		return month.AddDate(0, -1, 0), endBefore(month), true
	case PresetThisQuarter:
		return quarter, endBefore(quarter.AddDate(0, 3, 0)), true
	case PresetLast6Months:
		return now.AddDate(0, -6, 0), now, true
	case PresetThisYear:
		return year, endBefore(year.AddDate(1, 0, 0)), true
	case PresetLastYear:
		return year.AddDate(-1, 0, 0), endBefore(year), true
	}
	return time.Time{}, time.Time{}, false
}

func endBefore(t time.Time) time.Time {
	return t.Add(-time.Nanosecond)
}
