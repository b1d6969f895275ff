package occurrence

import (
	"occurcal/internal/datekey"
	"occurcal/internal/recurrence"
)

// NextOccurrence is the nearest occurrence of a series relative to today.
type NextOccurrence struct {
	Date        string `json:"date"`
	IsToday     bool   `json:"is_today"`
	IsTomorrow  bool   `json:"is_tomorrow"`
	IsConfident bool   `json:"is_confident"`
}

// Next computes the next occurrence of n on or after today:
//
//  1. custom dates: the earliest listed date >= today, else the last one;
//  2. one-time: the anchor date as-is;
//  3. recurring (monthly ordinals, weekly, biweekly, daily, yearly): the
//     first generated date >= max(today, anchor). A series whose bound lies
//     before today returns its final occurrence;
//  4. anything else: today, not confident.
func Next(n recurrence.Normalized, today string) NextOccurrence {
	fallback := NextOccurrence{Date: today, IsToday: true}
	if !datekey.Valid(today) {
		return fallback
	}

	switch n.Frequency {
	case recurrence.Custom:
		if len(n.CustomDates) == 0 {
			return fallback
		}
		for _, d := range n.CustomDates {
			if d >= today {
				return result(d, today, true)
			}
		}
		return result(n.CustomDates[len(n.CustomDates)-1], today, true)

	case recurrence.OneTime:
		if anchor, ok := n.Start.Get(); ok {
			return result(anchor, today, n.IsConfident)
		}
		return fallback

	case recurrence.Unknown:
		return fallback
	}

	if !n.IsConfident {
		return fallback
	}

	from := today
	if anchor, ok := n.Start.Get(); ok && anchor > from {
		from = anchor
	}
	horizon := datekey.AddDays(from, 2*maxGapDays(n)+31)

	if bound, ok := seriesEnd(n); ok {
		if from > bound {
			if last, ok := lastBefore(n, bound); ok {
				return result(last, today, true)
			}
			return fallback
		}
		horizon = datekey.Min(horizon, bound)
	}

	if dates := generate(n, from, horizon, 1); len(dates) > 0 {
		return result(dates[0], today, true)
	}
	return fallback
}

// lastBefore returns the final occurrence on or before bound.
func lastBefore(n recurrence.Normalized, bound string) (string, bool) {
	from := datekey.AddDays(bound, -2*maxGapDays(n)-31)
	if anchor, ok := n.Start.Get(); ok && anchor > from {
		from = anchor
	}
	dates := generate(n, from, bound, defaultMaxOccurrencesPerEvent)
	if len(dates) == 0 {
		return "", false
	}
	return dates[len(dates)-1], true
}

func result(date, today string, confident bool) NextOccurrence {
	return NextOccurrence{
		Date:        date,
		IsToday:     date == today,
		IsTomorrow:  date == datekey.AddDays(today, 1),
		IsConfident: confident,
	}
}
