package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
	"occurcal/internal/override"
	"occurcal/internal/timeline"
)

var la = datekey.MustCalendar("America/Los_Angeles")

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

var feed = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:game
SUMMARY:Game night
LOCATION:Back room
DTSTART;TZID=America/New_York:20250107T220000
DTEND;TZID=America/New_York:20250107T230000
RRULE:FREQ=WEEKLY;BYDAY=TU
EXDATE;TZID=America/New_York:20250121T220000
END:VEVENT
BEGIN:VEVENT
UID:game
RECURRENCE-ID;TZID=America/New_York:20250114T220000
DTSTART;TZID=America/New_York:20250116T220000
DTEND;TZID=America/New_York:20250116T230000
SUMMARY:Game night (moved)
END:VEVENT
BEGIN:VEVENT
UID:fair
SUMMARY:Fair
DTSTART;VALUE=DATE:20250301
RDATE;VALUE=DATE:20250308,20250315
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid
DTSTART:20250101T100000Z
END:VEVENT
END:VCALENDAR
`)

func TestParseICS(t *testing.T) {
	imp, err := ParseICS(Source{ID: "feed", URL: "https://example.com/cal.ics"}, feed, la)
	require.NoError(t, err)
	require.Len(t, imp.Events, 2)

	game := imp.Events[0]
	assert.Equal(t, "feed:game", game.ID)
	assert.Equal(t, "Game night", game.Title)
	assert.Equal(t, "Back room", game.VenueName)
	assert.Equal(t, "19:00", game.StartTime)
	assert.Equal(t, "20:00", game.EndTime)
	assert.True(t, game.Published)
	assert.Equal(t, model.Schedule{AnchorDate: "2025-01-07", Rule: "FREQ=WEEKLY;BYDAY=TU"}, game.Schedule)

	fair := imp.Events[1]
	assert.Equal(t, "feed:fair", fair.ID)
	assert.Empty(t, fair.StartTime)
	assert.Equal(t, []string{"2025-03-01", "2025-03-08", "2025-03-15"}, fair.Schedule.CustomDates)

	assert.Equal(t, []override.Override{
		{EventID: "feed:game", DateKey: "2025-01-21", Status: override.StatusCancelled},
		{
			EventID: "feed:game",
			DateKey: "2025-01-14",
			Status:  override.StatusNormal,
			Patch: override.Patch{
				override.FieldDate:    "2025-01-16",
				override.FieldEndTime: "20:00",
				override.FieldTitle:   "Game night (moved)",
			},
		},
	}, imp.Overrides)
}

func TestParseICSCancelledInstance(t *testing.T) {
	body := crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:club
SUMMARY:Club
DTSTART;VALUE=DATE:20250102
RRULE:FREQ=MONTHLY;BYDAY=1TH
END:VEVENT
BEGIN:VEVENT
UID:club
RECURRENCE-ID;VALUE=DATE:20250206
DTSTART;VALUE=DATE:20250206
STATUS:CANCELLED
END:VEVENT
END:VCALENDAR
`)
	imp, err := ParseICS(Source{ID: "c"}, body, la)
	require.NoError(t, err)
	require.Len(t, imp.Overrides, 1)
	assert.True(t, imp.Overrides[0].Cancelled())
	assert.Equal(t, "2025-02-06", imp.Overrides[0].DateKey)
	assert.Nil(t, imp.Overrides[0].Patch)
}

func TestParseICSEmptyBody(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil, la)
	assert.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	inst, err := parseInstant("20250107T030000Z", nil, la)
	require.NoError(t, err)
	assert.Equal(t, instant{Key: "2025-01-06", Clock: "19:00"}, inst)

	inst, err = parseInstant("20250107T090000", nil, la)
	require.NoError(t, err)
	assert.Equal(t, instant{Key: "2025-01-07", Clock: "09:00"}, inst)

	_, err = parseInstant("2025", nil, la)
	assert.Error(t, err)
	_, err = parseInstant("20250107T090000", map[string][]string{"TZID": {"Mars/Base"}}, la)
	assert.Error(t, err)
}

func TestFetchRevalidatesAndFallsBackToCache(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(feed)
	}))

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "feed", URL: srv.URL + "/private/cal.ics"}
	ctx := context.Background()

	res, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, feed, res.Body)

	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feed, res.Body)
	assert.EqualValues(t, 1, notModified.Load())

	srv.Close()
	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feed, res.Body)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetchAllReportsFailures(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.ics")
	require.NoError(t, os.WriteFile(local, feed, 0o600))

	f := NewFetcher(filepath.Join(dir, "cache"), nil)
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "local", URL: local},
		{ID: "missing", URL: filepath.Join(dir, "nope.ics")},
		{ID: "blank"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "local", results[0].Source.ID)
	assert.Equal(t, feed, results[0].Body)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "feed missing")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("/var/cal.ics"))
}

func TestExport(t *testing.T) {
	timed := model.Event{ID: "game", Title: "Game night", StartTime: "19:00", EndTime: "21:00", VenueName: "Back room", Address: "1 Main St"}
	allDay := model.Event{ID: "fair", Title: "Fair"}

	tl := timeline.Timeline{
		Groups: []timeline.Group{
			{Date: "2025-01-16", Entries: []timeline.Entry{{
				EventID: "game", DateKey: "2025-01-14", DisplayDate: "2025-01-16",
				Rescheduled: true, OriginalDate: "2025-01-14", Event: timed,
			}}},
			{Date: "2025-03-01", Entries: []timeline.Entry{{
				EventID: "fair", DateKey: "2025-03-01", DisplayDate: "2025-03-01", Event: allDay,
			}}},
		},
		Cancelled: []timeline.Entry{{
			EventID: "game", DateKey: "2025-01-21", DisplayDate: "2025-01-21", Cancelled: true, Event: timed,
		}},
	}
	stamp := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

	out := Export(tl, la, stamp)
	assert.Equal(t, out, Export(tl, la, stamp))

	parsed, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	events := parsed.Events()
	require.Len(t, events, 3)

	moved := events[0]
	assert.Equal(t, OccurrenceUID("game", "2025-01-14"), moved.Id())
	start, err := moved.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 1, 16, 19, 0, 0, 0, la.Location())), start.String())
	end, err := moved.GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2025, 1, 16, 21, 0, 0, 0, la.Location())), end.String())
	assert.Equal(t, "Back room, 1 Main St", moved.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "2025-01-14", moved.GetProperty(ical.ComponentProperty("X-OCCURCAL-ORIGINAL-DATE")).Value)

	fair := events[1]
	assert.Equal(t, "20250301", fair.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20250302", fair.GetProperty(ical.ComponentPropertyDtEnd).Value)
	assert.Equal(t, "CONFIRMED", fair.GetProperty(ical.ComponentPropertyStatus).Value)

	cancelled := events[2]
	assert.Equal(t, OccurrenceUID("game", "2025-01-21"), cancelled.Id())
	assert.Equal(t, "CANCELLED", cancelled.GetProperty(ical.ComponentPropertyStatus).Value)
	assert.NotEqual(t, moved.Id(), cancelled.Id())
}
