package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/samber/mo"

	"occurcal/internal/datekey"
	appLog "occurcal/internal/log"
	"occurcal/internal/model"
	"occurcal/internal/override"
)

// Import is the result of parsing one feed.
type Import struct {
	Events    []model.Event
	Overrides []override.Override
}

// instant is an ICS date or date-time resolved to a civil day.
type instant struct {
	Key   string
	Clock string // "15:04" in the calendar's zone; empty for all-day values
}

// vevent is the subset of a VEVENT the import uses.
type vevent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Cancelled   bool

	Start    instant
	End      mo.Option[instant]
	RRule    string
	RDates   []string
	ExDates  []string
	Instance *instant // RECURRENCE-ID
}

// ParseICS converts one feed into events and overrides.
//
//   - DTSTART becomes the anchor date (civil day in cal's zone) and, for
//     timed events, the start time.
//   - RRULE is stored verbatim as the schedule rule; RDATE without RRULE
//     becomes a custom date list.
//   - EXDATE becomes a cancelled override.
//   - A RECURRENCE-ID instance becomes an override patching the date, time
//     and text of that occurrence, or cancelling it.
//
// Event ids are "<source id>:<UID>". Malformed VEVENTs are logged and
// skipped.
func ParseICS(src Source, body []byte, cal *datekey.Calendar) (Import, error) {
	var out Import
	if len(body) == 0 {
		return out, errors.New("empty ICS body")
	}

	parsed, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return out, err
	}

	var bases, instances []vevent
	for _, comp := range parsed.Events() {
		ve, err := parseVEvent(comp, cal)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "err", err)
			continue
		}
		if ve.Instance != nil {
			instances = append(instances, ve)
		} else {
			bases = append(bases, ve)
		}
	}

	byUID := make(map[string]vevent, len(bases))
	for _, ve := range bases {
		if _, dup := byUID[ve.UID]; dup {
			appLog.Warn("ics duplicate UID, keeping first", "id", src.ID, "uid", ve.UID)
			continue
		}
		byUID[ve.UID] = ve
		ev := toEvent(src, ve)
		out.Events = append(out.Events, ev)
		for _, ex := range ve.ExDates {
			out.Overrides = append(out.Overrides, override.Override{
				EventID: ev.ID,
				DateKey: ex,
				Status:  override.StatusCancelled,
			})
		}
	}

	for _, inst := range instances {
		base, ok := byUID[inst.UID]
		if !ok {
			appLog.Warn("ics instance without master event", "id", src.ID, "uid", inst.UID)
			continue
		}
		out.Overrides = append(out.Overrides, toOverride(src, base, inst))
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL),
		"events", len(out.Events), "overrides", len(out.Overrides))
	return out, nil
}

func eventID(src Source, uid string) string {
	if src.ID == "" {
		return uid
	}
	return src.ID + ":" + uid
}

func toEvent(src Source, ve vevent) model.Event {
	ev := model.Event{
		ID:          eventID(src, ve.UID),
		Title:       ve.Summary,
		Description: ve.Description,
		VenueName:   ve.Location,
		StartTime:   ve.Start.Clock,
		Published:   !ve.Cancelled,
		Schedule: model.Schedule{
			AnchorDate: ve.Start.Key,
			Rule:       ve.RRule,
		},
	}
	if end, ok := ve.End.Get(); ok {
		ev.EndTime = end.Clock
	}
	if ve.RRule == "" && len(ve.RDates) > 0 {
		ev.Schedule.CustomDates = append([]string{ve.Start.Key}, ve.RDates...)
	} else if len(ve.RDates) > 0 {
		appLog.Debug("ics RDATE ignored alongside RRULE", "uid", ve.UID)
	}
	return ev
}

func toOverride(src Source, base, inst vevent) override.Override {
	o := override.Override{
		EventID: eventID(src, base.UID),
		DateKey: inst.Instance.Key,
		Status:  override.StatusNormal,
	}
	if inst.Cancelled {
		o.Status = override.StatusCancelled
		return o
	}
	patch := override.Patch{}
	if inst.Start.Key != "" && inst.Start.Key != inst.Instance.Key {
		patch[override.FieldDate] = inst.Start.Key
	}
	if inst.Start.Clock != "" && inst.Start.Clock != base.Start.Clock {
		patch[override.FieldStartTime] = inst.Start.Clock
	}
	if end, ok := inst.End.Get(); ok && end.Clock != "" {
		patch[override.FieldEndTime] = end.Clock
	}
	if inst.Summary != "" && inst.Summary != base.Summary {
		patch[override.FieldTitle] = inst.Summary
	}
	if inst.Description != "" && inst.Description != base.Description {
		patch[override.FieldDescription] = inst.Description
	}
	if inst.Location != "" && inst.Location != base.Location {
		patch[override.FieldVenueName] = inst.Location
	}
	if len(patch) > 0 {
		o.Patch = patch
	}
	return o
}

func parseVEvent(ve *ical.VEvent, cal *datekey.Calendar) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return out, fmt.Errorf("%s: missing DTSTART", out.UID)
	}
	inst, err := parseInstant(start.Value, start.ICalParameters, cal)
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.UID, err)
	}
	out.Start = inst

	if end := ve.GetProperty(ical.ComponentPropertyDtEnd); end != nil {
		if inst, err := parseInstant(end.Value, end.ICalParameters, cal); err == nil {
			out.End = mo.Some(inst)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimPrefix(strings.TrimSpace(p.Value), "RRULE:")
	}

	out.RDates = dateList(ve.GetProperties(ical.ComponentProperty("RDATE")), cal)
	out.ExDates = dateList(ve.GetProperties(ical.ComponentPropertyExdate), cal)

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		inst, err := parseInstant(p.Value, p.ICalParameters, cal)
		if err != nil {
			return out, fmt.Errorf("%s: RECURRENCE-ID: %w", out.UID, err)
		}
		out.Instance = &inst
	}
	return out, nil
}

// dateList collects the civil days of a multi-valued date property such as
// EXDATE, sorted and de-duplicated.
func dateList(props []*ical.IANAProperty, cal *datekey.Calendar) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			inst, err := parseInstant(part, p.ICalParameters, cal)
			if err != nil || seen[inst.Key] {
				continue
			}
			seen[inst.Key] = true
			out = append(out, inst.Key)
		}
	}
	sort.Strings(out)
	return out
}

// parseInstant resolves an ICS DATE or DATE-TIME value. UTC and TZID values
// are converted into cal's zone; DATE and floating values are civil already
// and are read field by field.
func parseInstant(v string, params map[string][]string, cal *datekey.Calendar) (instant, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return instant{}, fmt.Errorf("malformed value %q", v)
	}

	civil := v[0:4] + "-" + v[4:6] + "-" + v[6:8]
	if !datekey.Valid(civil) {
		return instant{}, fmt.Errorf("malformed value %q", v)
	}

	if !strings.Contains(v, "T") {
		return instant{Key: civil}, nil
	}

	var (
		t   time.Time
		err error
	)
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse("20060102T150405Z", v)
	case len(params["TZID"]) > 0:
		loc, lerr := time.LoadLocation(params["TZID"][0])
		if lerr != nil {
			return instant{}, fmt.Errorf("TZID %q: %w", params["TZID"][0], lerr)
		}
		t, err = time.ParseInLocation("20060102T150405", v, loc)
	default:
		// Floating time: the wall clock is the civil time in every zone.
		t, err = time.ParseInLocation("20060102T150405", v, cal.Location())
	}
	if err != nil {
		return instant{}, err
	}
	local := t.In(cal.Location())
	return instant{Key: cal.KeyOf(t), Clock: local.Format("15:04")}, nil
}
