package timeline

import (
	"sort"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/model"
	"occurcal/internal/occurrence"
	"occurcal/internal/override"
	"occurcal/internal/recurrence"
)

// Caps bound the work done by one batch. A zero field takes its default.
type Caps struct {
	MaxEvents   int `yaml:"max_events" toml:"max_events" json:"max_events"`
	MaxPerEvent int `yaml:"max_per_event" toml:"max_per_event" json:"max_per_event"`
	MaxTotal    int `yaml:"max_total" toml:"max_total" json:"max_total"`
}

// DefaultCaps returns the caps used when none are configured.
func DefaultCaps() Caps {
	return Caps{MaxEvents: 200, MaxPerEvent: 100, MaxTotal: 2000}
}

// WithDefaults fills zero fields from DefaultCaps.
func (c Caps) WithDefaults() Caps {
	d := DefaultCaps()
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.MaxPerEvent <= 0 {
		c.MaxPerEvent = d.MaxPerEvent
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = d.MaxTotal
	}
	return c
}

// Reasons reported for events that produced no occurrences.
const (
	ReasonUnknownSchedule = "schedule unknown"
	ReasonLowConfidence   = "schedule incomplete"
	ReasonOutsideWindow   = "no occurrences in window"
)

// UnknownEvent is an event that produced no occurrence in the window.
type UnknownEvent struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
	Summary string `json:"summary"`
}

// Group holds the entries displayed on one date.
type Group struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}

// Timeline is the date-grouped view of a batch.
type Timeline struct {
	Window    occurrence.Window `json:"window"`
	Groups    []Group           `json:"groups"`
	Cancelled []Entry           `json:"cancelled"`
	Unknown   []UnknownEvent    `json:"unknown"`

	EventsProcessed     int  `json:"events_processed"`
	EventsSkipped       int  `json:"events_skipped"`
	OccurrencesSkipped  int  `json:"occurrences_skipped"`
	Capped              bool `json:"capped"`
	InvariantViolations int  `json:"invariant_violations,omitempty"`
}

// Options configure BuildTimeline. Today is required; a zero Window means
// the default window from Today. A nil Calendar means UTC.
type Options struct {
	Today    string
	Window   occurrence.Window
	Caps     Caps
	Calendar *datekey.Calendar
}

func (o Options) window() occurrence.Window {
	if o.Window == (occurrence.Window{}) {
		return occurrence.DefaultWindow(o.Today)
	}
	return o.Window
}

func (o Options) calendar() *datekey.Calendar {
	if o.Calendar == nil {
		return datekey.MustCalendar("UTC")
	}
	return o.Calendar
}

// BuildTimeline expands events over the window, applies overrides and groups
// the result by display date. Events are processed in input order until the
// event cap or the total occurrence cap is reached. Inputs are not modified.
func BuildTimeline(events []model.Event, overrides []override.Override, opts Options) Timeline {
	caps := opts.Caps.WithDefaults()
	w := opts.window()
	tl := Timeline{
		Window:    w,
		Groups:    []Group{},
		Cancelled: []Entry{},
		Unknown:   []UnknownEvent{},
	}
	if !w.Valid() {
		appLog.Warn("timeline: invalid window", "start", w.Start, "end", w.End)
		tl.EventsSkipped = len(events)
		return tl
	}

	cal := opts.calendar()
	idx := override.NewIndex(overrides)
	grouped := make(map[string][]Entry)
	total := 0

	for i, ev := range events {
		if tl.EventsProcessed >= caps.MaxEvents || total >= caps.MaxTotal {
			tl.EventsSkipped = len(events) - i
			tl.Capped = true
			break
		}
		tl.EventsProcessed++

		n := recurrence.Normalize(ev.Schedule, cal)
		exp := occurrence.Expand(n, w, caps.MaxPerEvent, "event_id", ev.ID)
		if exp.Capped {
			tl.Capped = true
		}
		if exp.InvariantViolated {
			tl.InvariantViolations++
		}
		if len(exp.Dates) == 0 {
			tl.Unknown = append(tl.Unknown, UnknownEvent{
				EventID: ev.ID,
				Title:   ev.Title,
				Reason:  unknownReason(n),
				Summary: recurrence.Label(n),
			})
			continue
		}

		for j, d := range exp.Dates {
			if total >= caps.MaxTotal {
				tl.OccurrencesSkipped += len(exp.Dates) - j
				tl.Capped = true
				break
			}
			total++
			e := newEntry(ev, d, idx)
			if e.Cancelled {
				tl.Cancelled = append(tl.Cancelled, e)
				continue
			}
			grouped[d.DateKey] = append(grouped[d.DateKey], e)
		}
	}

	for date, entries := range Relocate(grouped) {
		sortEntries(entries)
		tl.Groups = append(tl.Groups, Group{Date: date, Entries: entries})
	}
	sort.Slice(tl.Groups, func(i, j int) bool { return tl.Groups[i].Date < tl.Groups[j].Date })
	sort.SliceStable(tl.Cancelled, func(i, j int) bool { return tl.Cancelled[i].DateKey < tl.Cancelled[j].DateKey })

	if tl.Capped {
		appLog.Info("timeline: caps reached",
			"events_processed", tl.EventsProcessed,
			"events_skipped", tl.EventsSkipped,
			"occurrences_skipped", tl.OccurrencesSkipped)
	}
	return tl
}

func unknownReason(n recurrence.Normalized) string {
	switch {
	case n.Frequency == recurrence.Unknown:
		return ReasonUnknownSchedule
	case !n.IsConfident:
		return ReasonLowConfidence
	default:
		return ReasonOutsideWindow
	}
}

// Entries flattens the grouped view in display order.
func (t Timeline) Entries() []Entry {
	var out []Entry
	for _, g := range t.Groups {
		out = append(out, g.Entries...)
	}
	return out
}
