package datekey

import (
	"fmt"
	"time"
)

// Calendar converts instants into date keys of one fixed civil timezone.
// It is constructed once and never mutated, so it can be shared freely.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the IANA zone name. An empty name means UTC.
func NewCalendar(zone string) (*Calendar, error) {
	if zone == "" {
		return &Calendar{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Calendar{loc: loc}, nil
}

// MustCalendar is NewCalendar for static zone names; it panics on failure.
func MustCalendar(zone string) *Calendar {
	c, err := NewCalendar(zone)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the calendar's civil timezone.
func (c *Calendar) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// KeyOf returns the civil day t falls on in the calendar's zone.
func (c *Calendar) KeyOf(t time.Time) string {
	return t.In(c.Location()).Format(Layout)
}

// Today is KeyOf(now). Callers resolve "now" once per request and pass the
// resulting key down so every computation shares the same notion of today.
func (c *Calendar) Today(now time.Time) string {
	return c.KeyOf(now)
}

// Midnight returns the start of the civil day key in the calendar's zone.
func (c *Calendar) Midnight(key string) (time.Time, error) {
	t, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Location()), nil
}
