package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	appLog "occurcal/internal/log"
	"occurcal/internal/model"
	"occurcal/internal/override"
)

// SQLiteStore keeps events and overrides in a SQLite database opened in WAL
// mode. Schedules and patches are stored as JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		host_notes TEXT NOT NULL DEFAULT '',
		cover_image TEXT NOT NULL DEFAULT '',
		venue_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		signup_mode TEXT NOT NULL DEFAULT '',
		slot_count INTEGER NOT NULL DEFAULT 0,
		published INTEGER NOT NULL DEFAULT 0,
		schedule TEXT NOT NULL DEFAULT '{}'
	);

	-- display_time, cover_image and host_notes are legacy columns; new rows
	-- leave them empty and use patch.
	CREATE TABLE IF NOT EXISTS overrides (
		row_id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'normal',
		display_time TEXT NOT NULL DEFAULT '',
		cover_image TEXT NOT NULL DEFAULT '',
		host_notes TEXT NOT NULL DEFAULT '',
		patch TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (event_id, date_key)
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_event ON overrides(event_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const eventColumns = `id, title, description, start_time, end_time, host_notes, cover_image,
	venue_name, address, capacity, signup_mode, slot_count, published, schedule`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		ev        model.Event
		published int
		schedule  string
	)
	err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&ev.HostNotes, &ev.CoverImage, &ev.VenueName, &ev.Address, &ev.Capacity,
		&ev.SignupMode, &ev.SlotCount, &published, &schedule)
	if err != nil {
		return model.Event{}, err
	}
	ev.Published = published != 0
	if schedule != "" {
		if err := json.Unmarshal([]byte(schedule), &ev.Schedule); err != nil {
			return model.Event{}, fmt.Errorf("decode schedule of %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list events: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("store: event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("store: get event %s: %w", id, err)
	}
	return ev, nil
}

func (s *SQLiteStore) PutEvent(ctx context.Context, ev model.Event) error {
	if err := validateEvent(ev); err != nil {
		return err
	}
	schedule, err := json.Marshal(ev.Schedule)
	if err != nil {
		return fmt.Errorf("store: encode schedule: %w", err)
	}
	published := 0
	if ev.Published {
		published = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			host_notes = excluded.host_notes,
			cover_image = excluded.cover_image,
			venue_name = excluded.venue_name,
			address = excluded.address,
			capacity = excluded.capacity,
			signup_mode = excluded.signup_mode,
			slot_count = excluded.slot_count,
			published = excluded.published,
			schedule = excluded.schedule
	`, ev.ID, ev.Title, ev.Description, ev.StartTime, ev.EndTime, ev.HostNotes, ev.CoverImage,
		ev.VenueName, ev.Address, ev.Capacity, ev.SignupMode, ev.SlotCount, published, string(schedule))
	if err != nil {
		return fmt.Errorf("store: put event %s: %w", ev.ID, err)
	}
	return nil
}

const overrideColumns = `event_id, date_key, status, display_time, cover_image, host_notes, patch`

func scanOverride(row rowScanner) (override.Override, error) {
	var (
		r     override.LegacyRow
		patch sql.NullString
	)
	if err := row.Scan(&r.EventID, &r.DateKey, &r.Status, &r.DisplayTime, &r.CoverImage, &r.HostNotes, &patch); err != nil {
		return override.Override{}, err
	}
	if patch.Valid && patch.String != "" {
		if err := json.Unmarshal([]byte(patch.String), &r.Patch); err != nil {
			appLog.Warn("store: ignoring malformed override patch", "event_id", r.EventID, "date", r.DateKey, "err", err)
			r.Patch = nil
		}
	}
	return override.FromLegacy(r), nil
}

func (s *SQLiteStore) ListOverrides(ctx context.Context) ([]override.Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+overrideColumns+` FROM overrides ORDER BY event_id, date_key`)
	if err != nil {
		return nil, fmt.Errorf("store: list overrides: %w", err)
	}
	defer rows.Close()

	var out []override.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list overrides: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetOverride(ctx context.Context, eventID, dateKey string) (override.Override, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM overrides WHERE event_id = ? AND date_key = ?`, eventID, dateKey)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return override.Override{}, false, nil
	}
	if err != nil {
		return override.Override{}, false, fmt.Errorf("store: get override %s@%s: %w", eventID, dateKey, err)
	}
	return o, true, nil
}

// PutOverride upserts o. The legacy columns are cleared; their content lives
// in the patch once a row has been read through FromLegacy.
func (s *SQLiteStore) PutOverride(ctx context.Context, o override.Override) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	row := override.ToRow(o)
	var patch any
	if len(row.Patch) > 0 {
		data, err := json.Marshal(row.Patch)
		if err != nil {
			return fmt.Errorf("store: encode patch: %w", err)
		}
		patch = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overrides (row_id, event_id, date_key, status, patch)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id, date_key) DO UPDATE SET
			status = excluded.status,
			patch = excluded.patch,
			display_time = '',
			cover_image = '',
			host_notes = '',
			updated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), row.EventID, row.DateKey, string(override.ParseStatus(row.Status)), patch)
	if err != nil {
		return fmt.Errorf("store: put override %s@%s: %w", o.EventID, o.DateKey, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
