// Package store persists events and per-occurrence overrides.
//
// Two backends are provided: a YAML document (FileStore) for small
// deployments and hand-edited data, and SQLite (SQLiteStore). Override rows
// may still carry the legacy single-field columns; both backends translate
// them with override.FromLegacy on read and only write the generic patch.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"occurcal/internal/datekey"
	"occurcal/internal/model"
	"occurcal/internal/override"
)

// ErrNotFound is returned by GetEvent for unknown ids.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator of the engine.
type Store interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListOverrides(ctx context.Context) ([]override.Override, error)
	GetOverride(ctx context.Context, eventID, dateKey string) (override.Override, bool, error)
	PutEvent(ctx context.Context, ev model.Event) error
	PutOverride(ctx context.Context, o override.Override) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the backend for driver. An empty driver means DriverFile.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile, "yaml":
		return OpenFile(path)
	case DriverSQLite, "sqlite3":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

func validateEvent(ev model.Event) error {
	if strings.TrimSpace(ev.ID) == "" {
		return errors.New("store: event id is required")
	}
	return nil
}

func validateOverride(o override.Override) error {
	if strings.TrimSpace(o.EventID) == "" {
		return errors.New("store: override event id is required")
	}
	if !datekey.Valid(o.DateKey) {
		return fmt.Errorf("store: override date %q: %w", o.DateKey, datekey.ErrInvalid)
	}
	return nil
}
