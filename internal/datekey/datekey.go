package datekey

import (
	"errors"
	"time"
)

// Layout is the wire format of a date key: a civil calendar day with no
// time-of-day and no UTC offset.
const Layout = "2006-01-02"

var ErrInvalid = errors.New("datekey: invalid date key")

// Valid reports whether key is a strict YYYY-MM-DD string naming a real day.
func Valid(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// Parse converts a date key into a time.Time pinned at noon UTC of that day.
//
// Noon UTC is used as a fixed-offset anchor so that adding whole days never
// crosses a DST transition and never lands on a neighbouring day.
func Parse(key string) (time.Time, error) {
	if len(key) != len(Layout) || key[4] != '-' || key[7] != '-' {
		return time.Time{}, ErrInvalid
	}
	for i, c := range key {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return time.Time{}, ErrInvalid
		}
	}
	t, err := time.Parse(Layout, key)
	if err != nil {
		return time.Time{}, ErrInvalid
	}
	return t.Add(12 * time.Hour), nil
}

// Format renders a time produced by Parse or FromCivil back into a key.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// FromCivil builds the key for a civil year/month/day. Out-of-range days
// normalize the same way time.Date does.
func FromCivil(year int, month time.Month, day int) string {
	return Format(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// AddDays shifts key by n days. Invalid keys are returned unchanged.
func AddDays(key string, n int) string {
	t, err := Parse(key)
	if err != nil {
		return key
	}
	return Format(t.AddDate(0, 0, n))
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns b - a in whole days. Unix seconds keep spans of any
// length exact where time.Duration would saturate.
func DaysBetween(a, b string) int {
	ta, err := Parse(a)
	if err != nil {
		return 0
	}
	tb, err := Parse(b)
	if err != nil {
		return 0
	}
	return int((tb.Unix() - ta.Unix()) / secondsPerDay)
}

// Weekday returns the day of week of key (time.Sunday for invalid keys).
func Weekday(key string) time.Weekday {
	t, err := Parse(key)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

// YearMonth splits key into its year and month.
func YearMonth(key string) (int, time.Month) {
	t, err := Parse(key)
	if err != nil {
		return 0, 0
	}
	return t.Year(), t.Month()
}

// AddMonths moves a (year, month) pair by n months, rolling the year over.
func AddMonths(year int, month time.Month, n int) (int, time.Month) {
	idx := year*12 + int(month-1) + n
	return idx / 12, time.Month(idx%12 + 1)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// Min and Max compare keys lexically, which matches calendar order for valid keys.
func Min(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func Max(a, b string) string {
	if a > b {
		return a
	}
	return b
}
