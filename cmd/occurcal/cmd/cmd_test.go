package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occurcal/internal/datekey"
	"occurcal/internal/occurrence"
)

const clubFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:game
SUMMARY:Game night
DTSTART:20250107T190000
RRULE:FREQ=WEEKLY;BYDAY=TU
EXDATE:20250121T190000
END:VEVENT
END:VCALENDAR
`

func writeConfig(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "occurcal.yaml")
	cfg := "timezone: UTC\n" +
		"store:\n  driver: file\n  path: " + filepath.Join(dir, "store.yaml") + "\n" +
		"feed_cache_dir: " + filepath.Join(dir, "feeds") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, dir
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append(args, "--config", cfgPath, "--today", "2025-01-06"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestImportQueryExport(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	feedPath := filepath.Join(dir, "club.ics")
	require.NoError(t, os.WriteFile(feedPath, []byte(strings.ReplaceAll(clubFeed, "\n", "\r\n")), 0o600))

	out, err := run(t, cfgPath, "import-ics", feedPath, "--id", "club")
	require.NoError(t, err, out)
	assert.Contains(t, out, "imported 1 feed(s): 1 events, 1 overrides")

	out, err = run(t, cfgPath, "timeline", "--days", "21", "--json=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2025-01-07")
	assert.Contains(t, out, "Game night")
	assert.Contains(t, out, "cancelled:\n  2025-01-21")

	out, err = run(t, cfgPath, "next", "club:game", "--json")
	require.NoError(t, err, out)
	var next occurrence.NextOccurrence
	require.NoError(t, json.Unmarshal([]byte(out), &next))
	assert.Equal(t, "2025-01-07", next.Date)
	assert.True(t, next.IsTomorrow)

	out, err = run(t, cfgPath, "series", "--json=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "club:game")
	assert.Contains(t, out, "Every Tuesday")

	out, err = run(t, cfgPath, "resolve", "club:game")
	require.NoError(t, err, out)
	assert.Equal(t, "2025-01-07\n", out)

	_, err = run(t, cfgPath, "resolve", "club:game", "2025-01-21")
	assert.ErrorContains(t, err, "occurrence cancelled")

	_, err = run(t, cfgPath, "resolve", "nope", "2025-01-21")
	assert.ErrorContains(t, err, "event not found")

	icsPath := filepath.Join(dir, "out.ics")
	out, err = run(t, cfgPath, "export-ics", "--days", "21", "-o", icsPath)
	require.NoError(t, err, out)
	body, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "STATUS:CANCELLED")
}

func TestImportWithoutFeeds(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, cfgPath, "import-ics")
	assert.ErrorContains(t, err, "no feed given")
}

func TestResolveToday(t *testing.T) {
	cal := datekey.MustCalendar("America/Los_Angeles")
	now := time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC)

	got, err := resolveToday(cal, "", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06", got)

	got, err = resolveToday(cal, "2025-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", got)

	_, err = resolveToday(cal, "03/01/2025", now)
	assert.ErrorIs(t, err, datekey.ErrInvalid)
}
