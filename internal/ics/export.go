package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/timeline"
)

// uidNamespace scopes the deterministic occurrence UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://occurcal.invalid/occurrence"))

// OccurrenceUID returns a stable UID for the occurrence (eventID, dateKey).
// Rescheduling does not change it, so subscribers update the moved event in
// place.
func OccurrenceUID(eventID, dateKey string) string {
	return uuid.NewSHA1(uidNamespace, []byte(eventID+"\x00"+dateKey)).String()
}

// Export renders the timeline as an ICS calendar: one VEVENT per grouped
// entry on its display date, plus the cancelled entries with
// STATUS:CANCELLED. stamp is written as DTSTAMP.
func Export(tl timeline.Timeline, cal *datekey.Calendar, stamp time.Time) string {
	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId("-//occurcal//occurrences//EN")

	n := 0
	for _, g := range tl.Groups {
		for _, e := range g.Entries {
			if addEntry(out, e, cal, stamp) {
				n++
			}
		}
	}
	for _, e := range tl.Cancelled {
		if addEntry(out, e, cal, stamp) {
			n++
		}
	}
	appLog.Debug("ics export", "vevents", n)
	return out.Serialize()
}

func addEntry(out *ical.Calendar, e timeline.Entry, cal *datekey.Calendar, stamp time.Time) bool {
	day, err := cal.Midnight(e.DisplayDate)
	if err != nil {
		appLog.Warn("ics export: skipping entry with invalid date", "event_id", e.EventID, "date", e.DisplayDate)
		return false
	}

	ve := out.AddEvent(OccurrenceUID(e.EventID, e.DateKey))
	ve.SetDtStampTime(stamp)
	ve.SetSummary(e.Event.Title)
	if e.Event.Description != "" {
		ve.SetDescription(e.Event.Description)
	}
	if loc := location(e); loc != "" {
		ve.SetLocation(loc)
	}

	if start, ok := timeline.MinuteOfDay(e.Event.StartTime); ok {
		ve.SetStartAt(at(day, start))
		if end, ok := timeline.MinuteOfDay(e.Event.EndTime); ok && end > start {
			ve.SetEndAt(at(day, end))
		}
	} else {
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
	}

	if e.Cancelled {
		ve.SetStatus(ical.ObjectStatusCancelled)
	} else {
		ve.SetStatus(ical.ObjectStatusConfirmed)
	}
	if e.Rescheduled {
		ve.SetProperty(ical.ComponentProperty("X-OCCURCAL-ORIGINAL-DATE"), e.OriginalDate)
	}
	return true
}

// at returns the wall-clock minute of day on day's civil date in day's zone.
func at(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}

func location(e timeline.Entry) string {
	switch {
	case e.Event.VenueName != "" && e.Event.Address != "":
		return e.Event.VenueName + ", " + e.Event.Address
	case e.Event.VenueName != "":
		return e.Event.VenueName
	default:
		return e.Event.Address
	}
}
