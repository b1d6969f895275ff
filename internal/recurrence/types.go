package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// Frequency is the tag of the normalized recurrence.
type Frequency string

const (
	OneTime  Frequency = "one-time"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Daily    Frequency = "daily"
	Yearly   Frequency = "yearly"
	Custom   Frequency = "custom"
	Unknown  Frequency = "unknown"
)

// LastOrdinal is the ordinal value for "last <weekday> of the month".
const LastOrdinal = -1

// Source records which syntax produced a Normalized value.
type Source string

const (
	SourceNone       Source = "none"
	SourceStructured Source = "structured"
	SourceLegacy     Source = "legacy"
)

// Day is a resolved day of week.
type Day struct {
	Index  int    `json:"index"` // 0 = Sunday
	Abbrev string `json:"abbrev"`
	Name   string `json:"name"`
}

// Weekday converts the Sunday-based index to time.Weekday.
func (d Day) Weekday() time.Weekday {
	return time.Weekday(d.Index)
}

// DayOf builds the Day for a weekday.
func DayOf(w time.Weekday) Day {
	name := w.String()
	return Day{Index: int(w), Abbrev: name[:3], Name: name}
}

// Normalized is the canonical recurrence descriptor. It is built once per
// event by Normalize; the generator and the label formatter both consume it
// so labels and generated dates cannot disagree.
type Normalized struct {
	IsRecurring bool
	Frequency   Frequency
	Day         mo.Option[Day]
	// Ordinals are weekday positions (1..5, or LastOrdinal) for monthly
	// patterns, canonically ordered.
	Ordinals []int
	// MonthDays are BYMONTHDAY values for monthly-by-date patterns.
	MonthDays []int
	Interval  int
	Start     mo.Option[string]
	End       mo.Option[string]
	Count     mo.Option[int]
	// CustomDates is sorted and deduplicated.
	CustomDates []string
	IsConfident bool
	Source      Source
}

// Bounded reports whether the series carries an end date or a count.
func (n Normalized) Bounded() bool {
	return n.End.IsPresent() || n.Count.IsPresent()
}

// IsMonthlyOrdinal reports whether the series is an nth-weekday pattern.
func (n Normalized) IsMonthlyOrdinal() bool {
	return n.Frequency == Monthly && len(n.Ordinals) > 0 && n.Day.IsPresent()
}

// Stride returns the day step between occurrences for weekly patterns.
func (n Normalized) Stride() int {
	switch n.Frequency {
	case Weekly:
		return 7 * n.interval()
	case Biweekly:
		return 14
	case Daily:
		return n.interval()
	}
	return 0
}

func (n Normalized) interval() int {
	if n.Interval < 1 {
		return 1
	}
	return n.Interval
}
