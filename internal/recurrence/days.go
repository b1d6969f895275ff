package recurrence

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

var dayWords = map[string]time.Weekday{
	"su": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
	"mo": time.Monday, "mon": time.Monday, "monday": time.Monday,
	"tu": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"we": time.Wednesday, "wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"th": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fr": time.Friday, "fri": time.Friday, "friday": time.Friday,
	"sa": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDay resolves a day-of-week label such as "Tuesday", "tue", "TU" or
// "Tuesdays".
func ParseDay(label string) mo.Option[Day] {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimSuffix(s, ".")
	if w, ok := dayWords[s]; ok {
		return mo.Some(DayOf(w))
	}
	if strings.HasSuffix(s, "s") {
		if w, ok := dayWords[strings.TrimSuffix(s, "s")]; ok && len(s) > 3 {
			return mo.Some(DayOf(w))
		}
	}
	return mo.None[Day]()
}

// dayInText finds the first day name inside free text. Two-letter codes are
// ignored here because "th" and friends show up in ordinal suffixes.
func dayInText(words []string) mo.Option[Day] {
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if d := ParseDay(w); d.IsPresent() {
			return d
		}
	}
	return mo.None[Day]()
}
