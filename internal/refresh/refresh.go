// Package refresh imports ICS feeds into the store. The serve command runs
// it from a cron job; import-ics runs it once.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"occurcal/internal/datekey"
	"occurcal/internal/ics"
	appLog "occurcal/internal/log"
	"occurcal/internal/store"
)

// Reloader is implemented by stores that can pick up external edits.
type Reloader interface {
	Reload() error
}

// Result summarizes one refresh.
type Result struct {
	Feeds     int
	Events    int
	Overrides int
	Errors    []error
}

// Refresher fetches feeds and writes what they contain into the store.
type Refresher struct {
	Store    store.Store
	Fetcher  *ics.Fetcher
	Calendar *datekey.Calendar
	Sources  []ics.Source

	// OnChange runs after a refresh wrote at least one record.
	OnChange func()
}

// Run reloads the store if it supports it, then imports every source.
// Feed failures are collected in Result.Errors and do not stop the others;
// the returned error is non-nil only when the store itself failed.
func (r *Refresher) Run(ctx context.Context) (Result, error) {
	var res Result
	if rl, ok := r.Store.(Reloader); ok {
		if err := rl.Reload(); err != nil {
			return res, fmt.Errorf("refresh: reload store: %w", err)
		}
	}

	fetched, errs := r.Fetcher.FetchAll(ctx, r.Sources)
	res.Errors = append(res.Errors, errs...)

	for _, f := range fetched {
		imp, err := ics.ParseICS(f.Source, f.Body, r.Calendar)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("feed %s: %w", f.Source.ID, err))
			continue
		}
		if err := Write(ctx, r.Store, imp); err != nil {
			return res, err
		}
		res.Feeds++
		res.Events += len(imp.Events)
		res.Overrides += len(imp.Overrides)
	}

	if res.Events+res.Overrides > 0 && r.OnChange != nil {
		r.OnChange()
	}
	if len(res.Errors) > 0 {
		appLog.Error("refresh: some feeds failed", errors.Join(res.Errors...), "error_count", len(res.Errors))
	}
	appLog.Info("refresh completed", "feeds", res.Feeds, "events", res.Events, "overrides", res.Overrides)
	return res, nil
}

// Write stores the events and overrides of one import.
func Write(ctx context.Context, st store.Store, imp ics.Import) error {
	for _, ev := range imp.Events {
		if err := st.PutEvent(ctx, ev); err != nil {
			return fmt.Errorf("refresh: put event %s: %w", ev.ID, err)
		}
	}
	for _, o := range imp.Overrides {
		if err := st.PutOverride(ctx, o); err != nil {
			return fmt.Errorf("refresh: put override %s@%s: %w", o.EventID, o.DateKey, err)
		}
	}
	return nil
}

// Schedule registers r on c under spec. Runs do not overlap: a run still in
// progress when the next tick fires makes that tick a no-op.
func Schedule(ctx context.Context, c *cron.Cron, spec string, r *Refresher, after func()) (cron.EntryID, error) {
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := r.Run(runCtx); err != nil {
			appLog.Error("refresh job failed", err)
		}
		if after != nil {
			after()
		}
	}))
	return c.AddJob(spec, job)
}

// NewCron returns a cron scheduler evaluating specs in cal's zone.
func NewCron(cal *datekey.Calendar) *cron.Cron {
	return cron.New(cron.WithLocation(cal.Location()), cron.WithLogger(cronLogger{}))
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
