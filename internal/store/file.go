package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	appLog "occurcal/internal/log"
	"occurcal/internal/model"
	"occurcal/internal/override"
)

// document is the on-disk YAML layout of a FileStore.
type document struct {
	Events    []model.Event         `yaml:"events"`
	Overrides []override.LegacyRow `yaml:"overrides"`
}

// FileStore keeps events and overrides in one YAML document. Every write
// rewrites the whole file atomically.
type FileStore struct {
	path string

	mu        sync.RWMutex
	events    []model.Event
	overrides []override.Override
}

// OpenFile loads path. A missing file is an empty store; it is created on
// the first write.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: file path is empty")
	}
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the document from disk, replacing the in-memory state.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var doc document
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("store: parse %s: %w", s.path, err)
		}
	}

	overrides := make([]override.Override, 0, len(doc.Overrides))
	for _, row := range doc.Overrides {
		o := override.FromLegacy(row)
		if err := validateOverride(o); err != nil {
			appLog.Warn("store: skipping override row", "event_id", row.EventID, "date", row.DateKey, "err", err)
			continue
		}
		overrides = append(overrides, o)
	}

	s.mu.Lock()
	s.events = doc.Events
	s.overrides = overrides
	s.mu.Unlock()

	appLog.Debug("store: loaded file", "path", s.path, "events", len(doc.Events), "overrides", len(overrides))
	return nil
}

func (s *FileStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Clone()
	}
	return out, nil
}

func (s *FileStore) GetEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev.Clone(), nil
		}
	}
	return model.Event{}, fmt.Errorf("store: event %s: %w", id, ErrNotFound)
}

func (s *FileStore) ListOverrides(_ context.Context) ([]override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]override.Override, len(s.overrides))
	for i, o := range s.overrides {
		out[i] = clonePatch(o)
	}
	return out, nil
}

func (s *FileStore) GetOverride(_ context.Context, eventID, dateKey string) (override.Override, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.overrides {
		if o.EventID == eventID && o.DateKey == dateKey {
			return clonePatch(o), true, nil
		}
	}
	return override.Override{}, false, nil
}

func (s *FileStore) PutEvent(_ context.Context, ev model.Event) error {
	if err := validateEvent(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]model.Event, 0, len(s.events)+1)
	replaced := false
	for _, cur := range s.events {
		if cur.ID == ev.ID {
			events = append(events, ev.Clone())
			replaced = true
			continue
		}
		events = append(events, cur)
	}
	if !replaced {
		events = append(events, ev.Clone())
	}
	if err := s.save(events, s.overrides); err != nil {
		return err
	}
	s.events = events
	return nil
}

func (s *FileStore) PutOverride(_ context.Context, o override.Override) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	o.Status = override.ParseStatus(string(o.Status))
	o.Patch = override.Sanitize(o.Patch)

	s.mu.Lock()
	defer s.mu.Unlock()

	overrides := make([]override.Override, 0, len(s.overrides)+1)
	replaced := false
	for _, cur := range s.overrides {
		if cur.EventID == o.EventID && cur.DateKey == o.DateKey {
			overrides = append(overrides, o)
			replaced = true
			continue
		}
		overrides = append(overrides, cur)
	}
	if !replaced {
		overrides = append(overrides, o)
	}
	if err := s.save(s.events, overrides); err != nil {
		return err
	}
	s.overrides = overrides
	return nil
}

func (s *FileStore) Close() error { return nil }

// save writes the document atomically via a temp file and rename.
func (s *FileStore) save(events []model.Event, overrides []override.Override) error {
	doc := document{Events: events, Overrides: make([]override.LegacyRow, 0, len(overrides))}
	for _, o := range overrides {
		doc.Overrides = append(doc.Overrides, override.ToRow(o))
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".occurcal-store-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func clonePatch(o override.Override) override.Override {
	if o.Patch == nil {
		return o
	}
	p := make(override.Patch, len(o.Patch))
	for k, v := range o.Patch {
		p[k] = v
	}
	o.Patch = p
	return o
}
