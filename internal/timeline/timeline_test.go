package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
	"occurcal/internal/occurrence"
	"occurcal/internal/override"
)

var testCal = datekey.MustCalendar("America/Los_Angeles")

func weekly(id, day string) model.Event {
	return model.Event{ID: id, Title: "Event " + id, Schedule: model.Schedule{DayOfWeek: day}}
}

func januaryOptions() Options {
	return Options{
		Today:    "2025-01-06",
		Window:   occurrence.Window{Start: "2025-01-06", End: "2025-01-31"},
		Calendar: testCal,
	}
}

func TestBuildTimelineEventCap(t *testing.T) {
	events := make([]model.Event, 250)
	for i := range events {
		events[i] = weekly(fmt.Sprintf("evt-%03d", i), "Tuesday")
	}
	tl := BuildTimeline(events, nil, Options{
		Today:    "2025-01-06",
		Caps:     Caps{MaxEvents: 200, MaxPerEvent: 100, MaxTotal: 100000},
		Calendar: testCal,
	})

	assert.Equal(t, 200, tl.EventsProcessed)
	assert.Equal(t, 50, tl.EventsSkipped)
	assert.True(t, tl.Capped)
	assert.Equal(t, 0, tl.OccurrencesSkipped)
	require.NotEmpty(t, tl.Groups)
	assert.Equal(t, "2025-01-07", tl.Groups[0].Date)
	assert.Len(t, tl.Groups[0].Entries, 200)
}

func TestBuildTimelineTotalCap(t *testing.T) {
	events := []model.Event{weekly("a", "Tuesday"), weekly("b", "Tuesday"), weekly("c", "Tuesday")}
	opts := januaryOptions()
	opts.Caps = Caps{MaxEvents: 10, MaxPerEvent: 100, MaxTotal: 5}

	tl := BuildTimeline(events, nil, opts)
	assert.Equal(t, 2, tl.EventsProcessed)
	assert.Equal(t, 1, tl.EventsSkipped)
	assert.Equal(t, 3, tl.OccurrencesSkipped)
	assert.True(t, tl.Capped)
	assert.Len(t, tl.Entries(), 5)
}

func TestBuildTimelineRescheduleAppearsOnceUnderDisplayDate(t *testing.T) {
	events := []model.Event{{
		ID:       "game",
		Title:    "Game night",
		Schedule: model.Schedule{AnchorDate: "2025-01-07", DayOfWeek: "Tuesday", Rule: "weekly"},
	}}
	overrides := []override.Override{{
		EventID: "game",
		DateKey: "2025-01-14",
		Patch:   override.Patch{"date": "2025-01-16", "title": "Game night (moved)"},
	}}

	tl := BuildTimeline(events, overrides, januaryOptions())

	var dates []string
	var hits []Entry
	for _, g := range tl.Groups {
		dates = append(dates, g.Date)
		for _, e := range g.Entries {
			if e.DateKey == "2025-01-14" {
				hits = append(hits, e)
				assert.Equal(t, "2025-01-16", g.Date)
			}
		}
	}
	assert.Equal(t, []string{"2025-01-07", "2025-01-16", "2025-01-21", "2025-01-28"}, dates)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].Rescheduled)
	assert.Equal(t, "2025-01-14", hits[0].OriginalDate)
	assert.Equal(t, "2025-01-16", hits[0].DisplayDate)
	assert.Equal(t, "Game night (moved)", hits[0].Event.Title)
	assert.Equal(t, "Game night", events[0].Title)
}

func TestBuildTimelineCancelledGoesToSideCollection(t *testing.T) {
	events := []model.Event{weekly("a", "Tuesday")}
	overrides := []override.Override{{EventID: "a", DateKey: "2025-01-21", Status: override.StatusCancelled}}

	tl := BuildTimeline(events, overrides, januaryOptions())
	for _, g := range tl.Groups {
		assert.NotEqual(t, "2025-01-21", g.Date)
	}
	require.Len(t, tl.Cancelled, 1)
	assert.Equal(t, "2025-01-21", tl.Cancelled[0].DateKey)
	assert.Len(t, tl.Groups, 3)
}

func TestBuildTimelineSortsByEffectiveStartTime(t *testing.T) {
	oneOff := func(id, title, start string) model.Event {
		return model.Event{ID: id, Title: title, StartTime: start, Schedule: model.Schedule{AnchorDate: "2025-01-10"}}
	}
	events := []model.Event{
		oneOff("a", "Untimed", ""),
		oneOff("b", "Evening", "7:30 pm"),
		oneOff("c", "Morning", "09:00"),
		oneOff("d", "Also untimed", "tbd"),
	}
	overrides := []override.Override{{EventID: "a", DateKey: "2025-01-10", Patch: override.Patch{"start_time": "08:00"}}}

	tl := BuildTimeline(events, overrides, januaryOptions())
	require.Len(t, tl.Groups, 1)
	var ids []string
	for _, e := range tl.Groups[0].Entries {
		ids = append(ids, e.EventID)
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids)
}

func TestBuildTimelineReportsUnknownEvents(t *testing.T) {
	events := []model.Event{
		{ID: "u", Title: "Whenever", Schedule: model.Schedule{Rule: "whenever we feel like it"}},
		{ID: "l", Title: "Weekly somewhere", Schedule: model.Schedule{Rule: "weekly"}},
		{ID: "f", Title: "Next year", Schedule: model.Schedule{AnchorDate: "2026-01-06", DayOfWeek: "Tuesday"}},
		weekly("ok", "Friday"),
	}
	tl := BuildTimeline(events, nil, januaryOptions())

	require.Len(t, tl.Unknown, 3)
	assert.Equal(t, ReasonUnknownSchedule, tl.Unknown[0].Reason)
	assert.Equal(t, "Schedule unknown", tl.Unknown[0].Summary)
	assert.Equal(t, ReasonLowConfidence, tl.Unknown[1].Reason)
	assert.Equal(t, ReasonOutsideWindow, tl.Unknown[2].Reason)
	assert.Equal(t, 4, tl.EventsProcessed)
	assert.False(t, tl.Capped)
}

func TestBuildTimelineInvalidWindow(t *testing.T) {
	opts := januaryOptions()
	opts.Window = occurrence.Window{Start: "2025-02-01", End: "2025-01-01"}
	tl := BuildTimeline([]model.Event{weekly("a", "Tuesday")}, nil, opts)
	assert.Empty(t, tl.Groups)
	assert.Equal(t, 1, tl.EventsSkipped)
}

func TestRelocateReturnsNewGrouping(t *testing.T) {
	moved := Entry{EventID: "a", DateKey: "2025-01-14", DisplayDate: "2025-01-16", Rescheduled: true}
	stay := Entry{EventID: "b", DateKey: "2025-01-14", DisplayDate: "2025-01-14"}
	in := map[string][]Entry{"2025-01-14": {moved, stay}}

	out := Relocate(in)
	assert.Equal(t, []Entry{stay}, out["2025-01-14"])
	assert.Equal(t, []Entry{moved}, out["2025-01-16"])
	assert.Len(t, in["2025-01-14"], 2)
}

func TestMinuteOfDay(t *testing.T) {
	cases := map[string]int{"19:00": 1140, "7:30 PM": 1170, "7:30pm": 1170, "9 am": 540, "12:15 AM": 15}
	for in, want := range cases {
		got, ok := MinuteOfDay(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := MinuteOfDay("soon")
	assert.False(t, ok)
}

func TestBuildSeries(t *testing.T) {
	events := []model.Event{
		{ID: "c", Title: "Mystery", Schedule: model.Schedule{Rule: "whenever"}},
		{ID: "b", Title: "Book club", Schedule: model.Schedule{DayOfWeek: "Thursday", Rule: "1st"}},
		{ID: "a", Title: "Game night", Schedule: model.Schedule{DayOfWeek: "Tuesday"}},
	}
	overrides := []override.Override{{EventID: "a", DateKey: "2025-01-14", Status: override.StatusCancelled}}

	series := BuildSeries(events, overrides, SeriesOptions{
		Today:         "2025-01-06",
		UpcomingLimit: 5,
		Calendar:      testCal,
	})
	require.Len(t, series, 3)

	a, b, c := series[0], series[1], series[2]
	assert.Equal(t, "a", a.Event.ID)
	assert.Equal(t, "2025-01-07", a.Next.Date)
	assert.Equal(t, "Every Tuesday", a.Summary)
	assert.Len(t, a.Upcoming, 5)
	assert.True(t, a.Upcoming[1].Cancelled)
	assert.Equal(t, "2025-01-14", a.Upcoming[1].Date)
	assert.Equal(t, 12, a.TotalUpcoming)

	assert.Equal(t, "b", b.Event.ID)
	assert.Equal(t, "2025-02-06", b.Next.Date)
	assert.Equal(t, []UpcomingDate{
		{Date: "2025-02-06", DateKey: "2025-02-06"},
		{Date: "2025-03-06", DateKey: "2025-03-06"},
		{Date: "2025-04-03", DateKey: "2025-04-03"},
	}, b.Upcoming)

	assert.Equal(t, "c", c.Event.ID)
	assert.False(t, c.Resolvable())
	assert.Equal(t, "Schedule unknown", c.Summary)
	assert.Empty(t, c.Upcoming)
}

func TestBuildSeriesFlagsCancelledNext(t *testing.T) {
	events := []model.Event{weekly("a", "Tuesday")}
	overrides := []override.Override{{EventID: "a", DateKey: "2025-01-07", Status: override.StatusCancelled}}
	series := BuildSeries(events, overrides, SeriesOptions{Today: "2025-01-06", Calendar: testCal})
	require.Len(t, series, 1)
	assert.True(t, series[0].NextCancelled)
}
