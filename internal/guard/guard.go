// Package guard resolves the occurrence a write targets and rejects writes
// against malformed dates, unknown events and cancelled occurrences.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
	"occurcal/internal/occurrence"
	"occurcal/internal/override"
	"occurcal/internal/recurrence"
	"occurcal/internal/store"
)

var (
	ErrInvalidDateKey      = errors.New("invalid date key")
	ErrEventNotFound       = errors.New("event not found")
	ErrOccurrenceCancelled = errors.New("occurrence cancelled")
	ErrNoNextOccurrence    = errors.New("schedule has no resolvable next occurrence")
)

// ResolveError carries the event and date a resolution failed for.
type ResolveError struct {
	Kind    error
	EventID string
	DateKey string
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("resolve %s", e.EventID)
	if e.DateKey != "" {
		msg += "@" + e.DateKey
	}
	return msg + ": " + e.Kind.Error()
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

// Lookup is the read side of the store the guard needs. GetEvent reports a
// missing event with store.ErrNotFound.
type Lookup interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetOverride(ctx context.Context, eventID, dateKey string) (override.Override, bool, error)
}

// Resolver resolves write targets against a Lookup.
type Resolver struct {
	Events   Lookup
	Calendar *datekey.Calendar
}

// Resolve returns the date key a write for eventID should target. An empty
// dateKey means the next occurrence relative to today; a schedule that
// cannot produce one fails with ErrNoNextOccurrence instead of falling back
// to today.
func (r Resolver) Resolve(ctx context.Context, eventID, dateKey, today string) (string, error) {
	dateKey = strings.TrimSpace(dateKey)
	if dateKey != "" && !datekey.Valid(dateKey) {
		return "", &ResolveError{Kind: ErrInvalidDateKey, EventID: eventID, DateKey: dateKey}
	}

	ev, err := r.Events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", &ResolveError{Kind: ErrEventNotFound, EventID: eventID, DateKey: dateKey}
		}
		return "", fmt.Errorf("guard: load event %s: %w", eventID, err)
	}

	if dateKey == "" {
		if !datekey.Valid(today) {
			return "", &ResolveError{Kind: ErrInvalidDateKey, EventID: eventID, DateKey: today}
		}
		next := occurrence.Next(recurrence.Normalize(ev.Schedule, r.Calendar), today)
		if !next.IsConfident {
			return "", &ResolveError{Kind: ErrNoNextOccurrence, EventID: eventID}
		}
		dateKey = next.Date
	}

	o, ok, err := r.Events.GetOverride(ctx, eventID, dateKey)
	if err != nil {
		return "", fmt.Errorf("guard: load override %s@%s: %w", eventID, dateKey, err)
	}
	if ok && o.Cancelled() {
		return "", &ResolveError{Kind: ErrOccurrenceCancelled, EventID: eventID, DateKey: dateKey}
	}
	return dateKey, nil
}
