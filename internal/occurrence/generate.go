package occurrence

import (
	"github.com/teambition/rrule-go"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/recurrence"
)

// generate lists the occurrences of a recurring series inside [from, to],
// stopping after limit dates. It knows nothing about windows, caps or
// bounds; callers clamp from/to first.
func generate(n recurrence.Normalized, from, to string, limit int) []string {
	if limit <= 0 || to < from {
		return nil
	}
	switch n.Frequency {
	case recurrence.Weekly, recurrence.Biweekly:
		return generateStride(n, from, to, limit)
	case recurrence.Monthly:
		if n.IsMonthlyOrdinal() {
			return generateMonthlyOrdinal(n, from, to, limit)
		}
		return generateRRule(n, from, to, limit)
	case recurrence.Daily, recurrence.Yearly:
		return generateRRule(n, from, to, limit)
	}
	return nil
}

// generateStride walks fixed day strides. When the series has an anchor,
// the anchor fixes the phase so a biweekly series keeps its fortnight.
func generateStride(n recurrence.Normalized, from, to string, limit int) []string {
	day, ok := n.Day.Get()
	if !ok {
		return nil
	}
	stride := n.Stride()

	first := onOrAfter(from, day)
	if anchor, ok := n.Start.Get(); ok && stride > 7 {
		a0 := onOrAfter(anchor, day)
		if a0 >= from {
			first = a0
		} else {
			gap := datekey.DaysBetween(a0, from)
			steps := (gap + stride - 1) / stride
			first = datekey.AddDays(a0, steps*stride)
		}
	}

	var out []string
	for d := first; d <= to && len(out) < limit; d = datekey.AddDays(d, stride) {
		out = append(out, d)
	}
	return out
}

// generateMonthlyOrdinal enumerates every configured ordinal in each month
// crossed by [from, to]. With an interval the anchor's month fixes the
// phase; without an anchor the month of from does.
func generateMonthlyOrdinal(n recurrence.Normalized, from, to string, limit int) []string {
	day := n.Day.MustGet()
	interval := n.Interval
	if interval < 1 {
		interval = 1
	}

	y, m := datekey.YearMonth(from)
	endY, endM := datekey.YearMonth(to)

	ay, am := datekey.YearMonth(n.Start.OrElse(from))
	anchorIdx := ay*12 + int(am-1)

	var out []string
	for y*12+int(m-1) <= endY*12+int(endM-1) {
		idx := y*12 + int(m-1)
		if ((idx-anchorIdx)%interval+interval)%interval == 0 {
			for _, key := range monthDates(y, m, day.Weekday(), n.Ordinals) {
				if key < from || key > to {
					continue
				}
				out = append(out, key)
				if len(out) >= limit {
					return out
				}
			}
		}
		y, m = datekey.AddMonths(y, m, 1)
	}
	return out
}

// generateRRule covers the frequencies without a hand-written walker
// (daily, yearly, monthly by day of month) through rrule-go.
func generateRRule(n recurrence.Normalized, from, to string, limit int) []string {
	start := n.Start.OrElse(from)
	dtstart, err := datekey.Parse(start)
	if err != nil {
		return nil
	}
	fromT, _ := datekey.Parse(from)
	toT, _ := datekey.Parse(to)

	opt := rrule.ROption{
		Dtstart:    dtstart,
		Interval:   max(n.Interval, 1),
		Bymonthday: n.MonthDays,
	}
	switch n.Frequency {
	case recurrence.Daily:
		opt.Freq = rrule.DAILY
	case recurrence.Yearly:
		opt.Freq = rrule.YEARLY
	case recurrence.Monthly:
		opt.Freq = rrule.MONTHLY
	default:
		return nil
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		appLog.Error("occurrence: rrule construction failed", err, "frequency", n.Frequency)
		return nil
	}

	var out []string
	iter := r.Iterator()
	for {
		t, ok := iter()
		if !ok || t.After(toT) || len(out) >= limit {
			break
		}
		if t.Before(fromT) {
			continue
		}
		out = append(out, datekey.Format(t))
	}
	return out
}

// onOrAfter returns the first date >= key falling on day.
func onOrAfter(key string, day recurrence.Day) string {
	diff := (day.Index - int(datekey.Weekday(key)) + 7) % 7
	return datekey.AddDays(key, diff)
}

// seriesEnd is the last date the series may produce: the explicit end date,
// or the date of the count-th occurrence counted from the anchor, whichever
// comes first. The count bound is found by exact forward enumeration.
func seriesEnd(n recurrence.Normalized) (string, bool) {
	end, hasEnd := n.End.Get()

	count, hasCount := n.Count.Get()
	anchor, hasAnchor := n.Start.Get()
	if hasCount && hasAnchor {
		horizon := datekey.AddDays(anchor, count*maxGapDays(n))
		if hasEnd {
			horizon = datekey.Min(horizon, end)
		}
		dates := generate(n, anchor, horizon, count)
		if len(dates) > 0 {
			implied := dates[len(dates)-1]
			if !hasEnd || implied < end {
				return implied, true
			}
		}
	}
	return end, hasEnd
}

// maxGapDays is an upper bound on the distance between two consecutive
// occurrences of n.
func maxGapDays(n recurrence.Normalized) int {
	interval := n.Interval
	if interval < 1 {
		interval = 1
	}
	switch n.Frequency {
	case recurrence.Weekly:
		return 7 * interval
	case recurrence.Biweekly:
		return 14
	case recurrence.Monthly:
		if !n.IsMonthlyOrdinal() {
			// Day-of-month 31 skips short months.
			return 62 * interval
		}
		if onlyFifth(n.Ordinals) {
			return 124 * interval
		}
		// The same weekday position is at most five weeks apart.
		return 35 * interval
	case recurrence.Daily:
		return interval
	case recurrence.Yearly:
		// Feb 29 only exists every fourth year.
		return 366 * 4 * interval
	}
	return 1
}

// onlyFifth reports whether every ordinal is the fifth weekday, which most
// months do not have.
func onlyFifth(ordinals []int) bool {
	if len(ordinals) == 0 {
		return false
	}
	for _, o := range ordinals {
		if o != 5 {
			return false
		}
	}
	return true
}
