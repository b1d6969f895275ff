package timeline

import (
	"sort"
	"strings"
	"time"

	"occurcal/internal/model"
	"occurcal/internal/occurrence"
	"occurcal/internal/override"
)

// Entry is one occurrence of one event after overrides have been applied.
// DateKey is the identity date and is what override and guard lookups use;
// DisplayDate is where the occurrence is shown.
type Entry struct {
	EventID      string      `json:"event_id"`
	DateKey      string      `json:"date_key"`
	DisplayDate  string      `json:"display_date"`
	Rescheduled  bool        `json:"rescheduled,omitempty"`
	OriginalDate string      `json:"original_date,omitempty"`
	Cancelled    bool        `json:"cancelled,omitempty"`
	HasOverride  bool        `json:"has_override,omitempty"`
	IsConfident  bool        `json:"is_confident"`
	Event        model.Event `json:"event"`
}

// newEntry merges the override stored for (ev.ID, d.DateKey), if any.
func newEntry(ev model.Event, d occurrence.Date, idx override.Index) Entry {
	e := Entry{
		EventID:     ev.ID,
		DateKey:     d.DateKey,
		DisplayDate: d.DateKey,
		IsConfident: d.IsConfident,
		Event:       ev,
	}
	o, ok := idx.Lookup(ev.ID, d.DateKey)
	if !ok {
		return e
	}
	e.HasOverride = true
	e.Cancelled = o.Cancelled()
	e.Event = override.Apply(ev, o)
	if moved, ok := override.RescheduleDate(o); ok {
		e.DisplayDate = moved
		e.Rescheduled = true
		e.OriginalDate = d.DateKey
	}
	return e
}

// Relocate returns a new grouping in which every rescheduled entry is filed
// under its display date instead of its identity date. groups is not
// modified.
func Relocate(groups map[string][]Entry) map[string][]Entry {
	out := make(map[string][]Entry, len(groups))
	for date, entries := range groups {
		for _, e := range entries {
			target := date
			if e.Rescheduled {
				target = e.DisplayDate
			}
			out[target] = append(out[target], e)
		}
	}
	return out
}

// sortEntries orders entries by effective start time; entries without a
// parseable time go last. Ties break on title, then event id.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		am, aok := MinuteOfDay(a.Event.StartTime)
		bm, bok := MinuteOfDay(b.Event.StartTime)
		if aok != bok {
			return aok
		}
		if aok && am != bm {
			return am < bm
		}
		if a.Event.Title != b.Event.Title {
			return a.Event.Title < b.Event.Title
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.DateKey < b.DateKey
	})
}

var timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3 PM", "3PM"}

// MinuteOfDay parses a civil time of day such as "19:00" or "7:30 pm" into
// minutes after midnight.
func MinuteOfDay(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}
