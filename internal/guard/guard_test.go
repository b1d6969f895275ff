package guard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
	"occurcal/internal/override"
	"occurcal/internal/store"
)

type fakeLookup struct {
	events    map[string]model.Event
	overrides override.Index
	err       error
}

func (f fakeLookup) GetEvent(_ context.Context, id string) (model.Event, error) {
	if f.err != nil {
		return model.Event{}, f.err
	}
	ev, ok := f.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("lookup %s: %w", id, store.ErrNotFound)
	}
	return ev, nil
}

func (f fakeLookup) GetOverride(_ context.Context, eventID, dateKey string) (override.Override, bool, error) {
	o, ok := f.overrides.Lookup(eventID, dateKey)
	return o, ok, nil
}

func newResolver() Resolver {
	return Resolver{
		Events: fakeLookup{
			events: map[string]model.Event{
				"game":    {ID: "game", Schedule: model.Schedule{DayOfWeek: "Tuesday"}},
				"someday": {ID: "someday", Schedule: model.Schedule{Rule: "every so often"}},
				"every":   {ID: "every", Schedule: model.Schedule{Rule: "FREQ=DAILY;BYDAY=MO,WE"}},
			},
			overrides: override.NewIndex([]override.Override{
				{EventID: "game", DateKey: "2025-01-14", Status: override.StatusCancelled},
				{EventID: "game", DateKey: "2025-01-21", Patch: override.Patch{"title": "x"}},
			}),
		},
		Calendar: datekey.MustCalendar("America/Los_Angeles"),
	}
}

func TestResolve(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	got, err := r.Resolve(ctx, "game", "2025-01-21", "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-21", got)

	got, err = r.Resolve(ctx, "game", "", "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-07", got)
}

func TestResolveErrors(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	tests := []struct {
		name    string
		eventID string
		date    string
		today   string
		want    error
	}{
		{"malformed date", "game", "2025-1-14", "2025-01-06", ErrInvalidDateKey},
		{"impossible date", "game", "2025-02-30", "2025-01-06", ErrInvalidDateKey},
		{"unknown event", "nope", "2025-01-14", "2025-01-06", ErrEventNotFound},
		{"cancelled occurrence", "game", "2025-01-14", "2025-01-06", ErrOccurrenceCancelled},
		{"cancelled next occurrence", "game", "", "2025-01-08", ErrOccurrenceCancelled},
		{"invalid today", "game", "", "today", ErrInvalidDateKey},
		{"unknown schedule", "someday", "", "2025-01-06", ErrNoNextOccurrence},
		{"unsupported rule", "every", "", "2025-01-06", ErrNoNextOccurrence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.eventID, tt.date, tt.today)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var re *ResolveError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.eventID, re.EventID)
		})
	}
}

func TestResolveExplicitDateOnUnknownSchedule(t *testing.T) {
	got, err := newResolver().Resolve(context.Background(), "someday", "2025-02-01", "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", got)
}

func TestResolveErrorMessage(t *testing.T) {
	_, err := newResolver().Resolve(context.Background(), "game", "2025-01-14", "2025-01-06")
	assert.EqualError(t, err, "resolve game@2025-01-14: occurrence cancelled")
}

func TestResolvePropagatesStoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")
	r := Resolver{Events: fakeLookup{err: boom}}
	_, err := r.Resolve(context.Background(), "game", "2025-01-14", "2025-01-06")
	assert.ErrorIs(t, err, boom)
	var re *ResolveError
	assert.False(t, errors.As(err, &re))
}
