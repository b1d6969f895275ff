package occurrence

import (
	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/recurrence"
)

const (
	// DefaultWindowDays is the default rolling expansion horizon.
	DefaultWindowDays = 90

	defaultMaxOccurrencesPerEvent = 500
)

// Window is an inclusive [Start, End] range of date keys.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DefaultWindow returns [today, today+90].
func DefaultWindow(today string) Window {
	return WindowFor(today, DefaultWindowDays)
}

// WindowFor returns [today, today+days].
func WindowFor(today string, days int) Window {
	return Window{Start: today, End: datekey.AddDays(today, days)}
}

// Contains reports whether key lies inside the window.
func (w Window) Contains(key string) bool {
	return key >= w.Start && key <= w.End
}

// Valid reports whether both ends are valid keys in order.
func (w Window) Valid() bool {
	return datekey.Valid(w.Start) && datekey.Valid(w.End) && w.Start <= w.End
}

// Date is one generated occurrence.
type Date struct {
	DateKey     string `json:"date"`
	IsConfident bool   `json:"is_confident"`
}

// Expansion is the result of expanding one series over a window.
type Expansion struct {
	Dates []Date
	// Capped is true when maxPerEvent cut the list short.
	Capped bool
	// InvariantViolated flags a confident, unbounded series that produced a
	// single occurrence over a window wide enough to hold two. It points at
	// a generator defect; callers must not surface it as an error.
	InvariantViolated bool
}

// Expand lists the occurrences of n inside w, in date order, with at most
// maxPerEvent entries (a default cap applies when maxPerEvent <= 0).
//
//   - One-time series yield the anchor when it lies inside the window.
//   - Custom series yield their listed dates inside the window.
//   - Recurring series start at the later of the anchor and the window
//     start, and stop at the earlier of the window end and the series end
//     (explicit end date or the count-th occurrence).
//
// kv is appended to the diagnostic log line emitted on an invariant
// violation (typically "event_id", id).
func Expand(n recurrence.Normalized, w Window, maxPerEvent int, kv ...any) Expansion {
	var res Expansion
	if !w.Valid() {
		return res
	}
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	var keys []string
	start, end := w.Start, w.End

	switch n.Frequency {
	case recurrence.OneTime:
		if anchor, ok := n.Start.Get(); ok && w.Contains(anchor) {
			keys = []string{anchor}
		}
	case recurrence.Custom:
		for _, d := range n.CustomDates {
			if w.Contains(d) {
				keys = append(keys, d)
			}
		}
	case recurrence.Unknown:
		return res
	default:
		if !n.IsConfident {
			return res
		}
		if anchor, ok := n.Start.Get(); ok && anchor > start {
			start = anchor
		}
		if bound, ok := seriesEnd(n); ok && bound < end {
			end = bound
		}
		keys = generate(n, start, end, maxPerEvent+1)
		// Without an anchor a count can only bound the number of dates.
		if count, ok := n.Count.Get(); ok && n.Start.IsAbsent() && len(keys) > count {
			keys = keys[:count]
		}
	}

	if len(keys) > maxPerEvent {
		keys = keys[:maxPerEvent]
		res.Capped = true
	}

	res.Dates = make([]Date, 0, len(keys))
	for _, k := range keys {
		res.Dates = append(res.Dates, Date{DateKey: k, IsConfident: n.IsConfident})
	}

	if violatesMultiplicity(n, start, end, len(res.Dates), maxPerEvent) {
		res.InvariantViolated = true
		extended := append([]any{
			"frequency", n.Frequency,
			"window_start", start,
			"window_end", end,
		}, kv...)
		appLog.Warn("occurrence: recurring series expanded to a single date", extended...)
	}
	return res
}

// violatesMultiplicity checks the post-expansion invariant. A span of two
// maximal gaps minus a day always holds at least two occurrences.
func violatesMultiplicity(n recurrence.Normalized, start, end string, got, maxPerEvent int) bool {
	if got != 1 || maxPerEvent < 2 {
		return false
	}
	if !n.IsRecurring || !n.IsConfident || n.Bounded() {
		return false
	}
	switch n.Frequency {
	case recurrence.OneTime, recurrence.Custom, recurrence.Unknown:
		return false
	}
	return datekey.DaysBetween(start, end) >= MinMultiSpan(n)
}

// MinMultiSpan is the window span (end minus start, in days) from which an
// unbounded series of n must yield more than one occurrence.
func MinMultiSpan(n recurrence.Normalized) int {
	return 2*maxGapDays(n) - 1
}
