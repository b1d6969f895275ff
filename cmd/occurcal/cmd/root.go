package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"occurcal/internal/config"
	"occurcal/internal/datekey"
	"occurcal/internal/ics"
	appLog "occurcal/internal/log"
	"occurcal/internal/store"
)

var (
	cfgFile   string
	todayFlag string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "occurcal",
	Short: "occurcal - recurring event occurrences",
	Long: `occurcal expands recurring event schedules into concrete dated
occurrences, applies per-occurrence overrides and serves the result.

Commands:
  serve       - HTTP API with scheduled feed refresh
  timeline    - date-grouped occurrences for a window
  series      - one line per event with its next occurrence
  next        - next occurrence of one event
  resolve     - occurrence a write for an event would target
  import-ics  - import an ICS feed into the store
  export-ics  - export the timeline as ICS`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./occurcal.yaml", "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "pin today as YYYY-MM-DD (default: current date in the configured timezone)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// app is what every command works with.
type app struct {
	cfg   *config.Config
	cal   *datekey.Calendar
	store store.Store
	today string
}

// loadApp loads the config, applies the log level, opens the store and
// resolves today.
func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", cfgFile)
		return nil, err
	}
	level := appLog.ParseLevel(cfg.LogLevel)
	if verbose {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	today, err := resolveToday(cal, todayFlag, time.Now())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		appLog.Error("failed to open store", err, "driver", cfg.Store.Driver, "path", cfg.Store.Path)
		return nil, err
	}

	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"window_days", cfg.WindowDays,
		"store", cfg.Store.Driver,
		"feeds", len(cfg.Feeds),
		"today", today,
	)
	return &app{cfg: cfg, cal: cal, store: st, today: today}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		appLog.Error("failed to close store", err)
	}
}

func (a *app) sources() []ics.Source {
	out := make([]ics.Source, 0, len(a.cfg.Feeds))
	for _, f := range a.cfg.Feeds {
		out = append(out, ics.Source{ID: f.ID, URL: f.URL, Name: f.Name})
	}
	return out
}

func resolveToday(cal *datekey.Calendar, flag string, now time.Time) (string, error) {
	if flag == "" {
		return cal.Today(now), nil
	}
	if !datekey.Valid(flag) {
		return "", fmt.Errorf("--today %q: %w", flag, datekey.ErrInvalid)
	}
	return flag, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
