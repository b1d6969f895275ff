package recurrence

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
)

// Normalize interprets raw scheduling fields into one Normalized value.
//
// Resolution order:
//   - an explicit custom date list wins over any rule text;
//   - structured rule parsing (FREQ=...; via rrule-go);
//   - legacy free text (tokens, ordinal words, composite ordinals);
//   - the day of week falls back to the anchor date's weekday;
//   - anything unresolved is Unknown and not confident.
//
// Normalize never fails; malformed input only lowers confidence.
func Normalize(in model.Schedule, cal *datekey.Calendar) Normalized {
	n := Normalized{
		Frequency: Unknown,
		Interval:  1,
		Source:    SourceNone,
		Day:       ParseDay(in.DayOfWeek),
		Start:     validKey(in.AnchorDate),
		End:       validKey(in.EndDate),
	}
	if in.MaxOccurrences > 0 {
		n.Count = mo.Some(in.MaxOccurrences)
	}

	if dates := cleanDates(in.CustomDates); len(dates) > 0 {
		n.Frequency = Custom
		n.IsRecurring = len(dates) > 1
		n.CustomDates = dates
		n.IsConfident = true
		n.Day = mo.None[Day]()
		return n
	}

	rule := strings.TrimSpace(in.Rule)
	recognized := false
	if s, ok := parseStructured(rule, cal); ok {
		n.Source = SourceStructured
		recognized = s.apply(&n)
	} else {
		n.Source = SourceLegacy
		if rule == "" {
			n.Source = SourceNone
		}
		recognized = applyLegacy(rule, &n)
	}

	// Defensive fallback: derive the weekday from the anchor date.
	if n.Day.IsAbsent() {
		if anchor, ok := n.Start.Get(); ok {
			n.Day = mo.Some(DayOf(datekey.Weekday(anchor)))
		}
	}

	// "monthly" with no ordinal keeps the anchor's position in its month.
	if n.Frequency == Monthly && len(n.Ordinals) == 0 && len(n.MonthDays) == 0 {
		if anchor, ok := n.Start.Get(); ok {
			t, _ := datekey.Parse(anchor)
			n.Ordinals = []int{ordinalFromDay(t.Day())}
		}
	}

	n.IsConfident = recognized && resolvable(n)
	if !recognized {
		n.Frequency = Unknown
		n.IsRecurring = false
		n.Ordinals = nil
		n.MonthDays = nil
	}
	return n
}

// resolvable reports whether n carries everything its frequency needs to
// produce concrete dates.
func resolvable(n Normalized) bool {
	switch n.Frequency {
	case OneTime:
		return n.Start.IsPresent()
	case Weekly, Biweekly:
		return n.Day.IsPresent()
	case Monthly:
		if len(n.MonthDays) > 0 {
			return true
		}
		return n.IsMonthlyOrdinal()
	case Daily:
		return true
	case Yearly:
		return n.Start.IsPresent()
	}
	return false
}

// applyLegacy recognizes free-text rules. It returns false when the text was
// not recognized; the Day resolved from the label is kept either way so that
// labels can still mention it.
func applyLegacy(rule string, n *Normalized) bool {
	text := strings.ToLower(strings.Join(strings.Fields(rule), " "))
	ws := words(text)

	if n.Day.IsAbsent() {
		n.Day = dayInText(ws)
	}

	switch text {
	case "", "none", "once", "one-time", "one time", "single", "seasonal":
		if text == "" && n.Start.IsAbsent() {
			// Only a weekday label: a plain weekly series.
			if n.Day.IsPresent() {
				n.Frequency = Weekly
				n.IsRecurring = true
				return true
			}
			return false
		}
		n.Frequency = OneTime
		return true
	case "weekly", "every week":
		return setRecurring(n, Weekly)
	case "biweekly", "bi-weekly", "every other week", "fortnightly", "every two weeks", "every 2 weeks":
		n.Interval = 2
		return setRecurring(n, Biweekly)
	case "monthly":
		return setRecurring(n, Monthly)
	case "daily", "every day":
		return setRecurring(n, Daily)
	case "yearly", "annually", "annual":
		return setRecurring(n, Yearly)
	case "custom":
		// A custom rule without dates has nothing to generate from.
		n.Frequency = Custom
		return false
	}

	if ords := ParseOrdinals(text); len(ords) > 0 {
		n.Ordinals = CanonicalOrdinals(ords)
		return setRecurring(n, Monthly)
	}

	for i, w := range ws {
		switch w {
		case "biweekly", "bi-weekly", "fortnightly":
			n.Interval = 2
			return setRecurring(n, Biweekly)
		case "every":
			if i+1 < len(ws) && ws[i+1] == "other" {
				n.Interval = 2
				return setRecurring(n, Biweekly)
			}
			if n.Day.IsPresent() {
				return setRecurring(n, Weekly)
			}
		case "weekly":
			return setRecurring(n, Weekly)
		}
	}
	return false
}

func setRecurring(n *Normalized, f Frequency) bool {
	n.Frequency = f
	n.IsRecurring = true
	return true
}

// structured is the subset of an RRULE this engine understands.
type structured struct {
	opt      *rrule.ROption
	until    string
	days     []Day
	ordinals []int
}

// parseStructured parses an RRULE-like string. It reports false when the
// text does not look structured or rrule-go rejects it, so the caller can
// fall back to legacy recognition.
func parseStructured(rule string, cal *datekey.Calendar) (structured, bool) {
	s := strings.ToUpper(strings.TrimSpace(rule))
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "FREQ=") {
			s = strings.TrimPrefix(line, "RRULE:")
			break
		}
	}
	if !strings.Contains(s, "FREQ=") {
		return structured{}, false
	}

	opt, err := rrule.StrToROption(s)
	if err != nil {
		return structured{}, false
	}

	out := structured{opt: opt, until: untilKey(s, opt, cal)}
	for _, wd := range opt.Byweekday {
		d := DayOf(weekdayFromRRule(wd.Day()))
		out.days = append(out.days, d)
		if wd.N() != 0 {
			out.ordinals = append(out.ordinals, wd.N())
		}
	}
	if len(out.ordinals) == 0 && len(out.days) > 0 {
		out.ordinals = append(out.ordinals, opt.Bysetpos...)
	}
	return out, true
}

// apply copies the structured rule onto n and reports whether the rule is
// one this engine can generate. BYDAY takes precedence over a day label.
// A rule part the chosen frequency would ignore makes the rule unrecognized
// rather than silently widening the series.
func (s structured) apply(n *Normalized) bool {
	o := s.opt
	if o.Interval > 0 {
		n.Interval = o.Interval
	}
	if o.Count > 0 && n.Count.IsAbsent() {
		n.Count = mo.Some(o.Count)
	}
	if s.until != "" {
		if end, ok := n.End.Get(); !ok || s.until < end {
			n.End = mo.Some(s.until)
		}
	}
	if len(s.days) > 0 {
		n.Day = mo.Some(s.days[0])
	}
	if len(o.Byyearday) > 0 || len(o.Byweekno) > 0 || len(o.Byeaster) > 0 {
		return false
	}

	switch o.Freq {
	case rrule.WEEKLY:
		if n.Interval == 2 {
			setRecurring(n, Biweekly)
		} else {
			setRecurring(n, Weekly)
		}
		if len(o.Bymonth) > 0 || len(o.Bymonthday) > 0 || len(o.Bysetpos) > 0 || len(s.ordinals) > 0 {
			return false
		}
		// One weekday per series; several distinct BYDAY values cannot be
		// represented faithfully.
		return distinctDays(s.days) <= 1
	case rrule.MONTHLY:
		setRecurring(n, Monthly)
		n.MonthDays = append([]int(nil), o.Bymonthday...)
		if len(o.Bymonth) > 0 || (len(s.days) > 0 && len(n.MonthDays) > 0) {
			return false
		}
		if len(s.ordinals) > 0 {
			n.Ordinals = CanonicalOrdinals(s.ordinals)
			return len(n.Ordinals) > 0 && distinctDays(s.days) <= 1
		}
		if len(o.Bysetpos) > 0 {
			return false
		}
		if len(s.days) > 0 {
			// BYDAY without a position means every such weekday, which is
			// weekly only when every month is taken.
			n.Frequency = Weekly
			return n.Interval == 1 && distinctDays(s.days) <= 1
		}
		if len(n.MonthDays) == 0 {
			// Plain FREQ=MONTHLY repeats on the anchor's day of month.
			anchor, ok := n.Start.Get()
			if !ok {
				return false
			}
			t, _ := datekey.Parse(anchor)
			n.MonthDays = []int{t.Day()}
		}
		n.Day = mo.None[Day]()
		return true
	case rrule.DAILY:
		if len(o.Bymonth) > 0 || len(o.Bymonthday) > 0 || len(o.Bysetpos) > 0 {
			return false
		}
		if len(s.days) > 0 {
			// Every day restricted to one weekday is that weekday every week.
			setRecurring(n, Weekly)
			return n.Interval == 1 && len(s.ordinals) == 0 && distinctDays(s.days) == 1
		}
		setRecurring(n, Daily)
		n.Day = mo.None[Day]()
		return true
	case rrule.YEARLY:
		setRecurring(n, Yearly)
		if len(s.days) > 0 || len(o.Bysetpos) > 0 {
			return false
		}
		return onAnchor(n.Start, o.Bymonth, o.Bymonthday)
	}
	return false
}

// onAnchor reports whether BYMONTH and BYMONTHDAY of a yearly rule name
// nothing but the anchor's own month and day, the only yearly date the
// generator produces.
func onAnchor(start mo.Option[string], months, monthDays []int) bool {
	if len(months) == 0 && len(monthDays) == 0 {
		return true
	}
	anchor, ok := start.Get()
	if !ok {
		return false
	}
	t, _ := datekey.Parse(anchor)
	for _, m := range months {
		if m != int(t.Month()) {
			return false
		}
	}
	for _, d := range monthDays {
		if d != t.Day() {
			return false
		}
	}
	return true
}

// untilKey extracts the UNTIL bound as a civil date key. Date-only and
// floating values are civil already; UTC values go through the calendar.
func untilKey(s string, opt *rrule.ROption, cal *datekey.Calendar) string {
	if opt.Until.IsZero() {
		return ""
	}
	for _, part := range strings.Split(s, ";") {
		raw, ok := strings.CutPrefix(part, "UNTIL=")
		if !ok {
			continue
		}
		if len(raw) >= 8 && !strings.HasSuffix(raw, "Z") {
			key := raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
			if datekey.Valid(key) {
				return key
			}
		}
	}
	return cal.KeyOf(opt.Until)
}

// weekdayFromRRule converts rrule-go's Monday-based day to time.Weekday.
func weekdayFromRRule(day int) time.Weekday {
	return time.Weekday((day + 1) % 7)
}

func distinctDays(days []Day) int {
	seen := make(map[int]bool)
	for _, d := range days {
		seen[d.Index] = true
	}
	return len(seen)
}

func validKey(key string) mo.Option[string] {
	key = strings.TrimSpace(key)
	if datekey.Valid(key) {
		return mo.Some(key)
	}
	return mo.None[string]()
}

func cleanDates(dates []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if !datekey.Valid(d) || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
