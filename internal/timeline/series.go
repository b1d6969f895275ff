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

const defaultUpcomingLimit = 8

// UpcomingDate is one entry of a series' upcoming list.
type UpcomingDate struct {
	Date        string `json:"date"`
	DateKey     string `json:"date_key"`
	Cancelled   bool   `json:"cancelled,omitempty"`
	Rescheduled bool   `json:"rescheduled,omitempty"`
}

// SeriesEntry is the per-event view of a batch.
type SeriesEntry struct {
	Event         model.Event               `json:"event"`
	Frequency     recurrence.Frequency      `json:"frequency"`
	Summary       string                    `json:"summary"`
	Next          occurrence.NextOccurrence `json:"next"`
	NextCancelled bool                      `json:"next_cancelled,omitempty"`
	Upcoming      []UpcomingDate            `json:"upcoming"`
	TotalUpcoming int                       `json:"total_upcoming"`
}

// Resolvable reports whether the entry has a confident next date.
func (s SeriesEntry) Resolvable() bool {
	return s.Next.IsConfident
}

// SeriesOptions configure BuildSeries. UpcomingLimit bounds the Upcoming
// list, not TotalUpcoming.
type SeriesOptions struct {
	Today         string
	Window        occurrence.Window
	Caps          Caps
	UpcomingLimit int
	Calendar      *datekey.Calendar
}

// BuildSeries returns one entry per event, sorted by next occurrence with
// unresolvable schedules last. At most Caps.MaxEvents events are processed.
func BuildSeries(events []model.Event, overrides []override.Override, opts SeriesOptions) []SeriesEntry {
	caps := opts.Caps.WithDefaults()
	base := Options{Today: opts.Today, Window: opts.Window, Calendar: opts.Calendar}
	w := base.window()
	cal := base.calendar()
	limit := opts.UpcomingLimit
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	idx := override.NewIndex(overrides)

	if len(events) > caps.MaxEvents {
		appLog.Info("timeline: series capped", "events", len(events), "max_events", caps.MaxEvents)
		events = events[:caps.MaxEvents]
	}

	out := make([]SeriesEntry, 0, len(events))
	for _, ev := range events {
		n := recurrence.Normalize(ev.Schedule, cal)
		entry := SeriesEntry{
			Event:     ev,
			Frequency: n.Frequency,
			Summary:   recurrence.Label(n),
			Next:      occurrence.Next(n, opts.Today),
			Upcoming:  []UpcomingDate{},
		}
		if o, ok := idx.Lookup(ev.ID, entry.Next.Date); ok && entry.Next.IsConfident {
			entry.NextCancelled = o.Cancelled()
		}

		if w.Valid() {
			exp := occurrence.Expand(n, w, caps.MaxPerEvent, "event_id", ev.ID)
			for _, d := range exp.Dates {
				e := newEntry(ev, d, idx)
				if !e.Cancelled {
					entry.TotalUpcoming++
				}
				if len(entry.Upcoming) < limit {
					entry.Upcoming = append(entry.Upcoming, UpcomingDate{
						Date:        e.DisplayDate,
						DateKey:     e.DateKey,
						Cancelled:   e.Cancelled,
						Rescheduled: e.Rescheduled,
					})
				}
			}
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Resolvable() != b.Resolvable() {
			return a.Resolvable()
		}
		if a.Resolvable() && a.Next.Date != b.Next.Date {
			return a.Next.Date < b.Next.Date
		}
		return a.Event.Title < b.Event.Title
	})
	return out
}
