package occurrence

import (
	"sort"
	"time"

	"occurcal/internal/datekey"
	"occurcal/internal/recurrence"
)

// NthWeekday returns the date key of the nth weekday of a month. Ordinal -1
// means the last such weekday. ok is false when the month has no nth match
// (e.g. a fifth Monday in a four-Monday month).
func NthWeekday(year int, month time.Month, weekday time.Weekday, ordinal int) (string, bool) {
	days := datekey.DaysInMonth(year, month)

	if ordinal == recurrence.LastOrdinal {
		for d := days; d >= 1; d-- {
			if datekey.Weekday(datekey.FromCivil(year, month, d)) == weekday {
				return datekey.FromCivil(year, month, d), true
			}
		}
		return "", false
	}
	if ordinal < 1 {
		return "", false
	}

	seen := 0
	for d := 1; d <= days; d++ {
		key := datekey.FromCivil(year, month, d)
		if datekey.Weekday(key) != weekday {
			continue
		}
		seen++
		if seen == ordinal {
			return key, true
		}
	}
	return "", false
}

// monthDates returns the ordinal dates of one month in calendar order. The
// fifth and the last weekday can coincide, so duplicates are dropped.
func monthDates(year int, month time.Month, weekday time.Weekday, ordinals []int) []string {
	out := make([]string, 0, len(ordinals))
	seen := make(map[string]bool, len(ordinals))
	for _, o := range ordinals {
		key, ok := NthWeekday(year, month, weekday, o)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
