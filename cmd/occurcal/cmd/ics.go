package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"occurcal/internal/ics"
	"occurcal/internal/refresh"
)

var (
	importID   string
	exportDays int
	exportOut  string
)

var importCmd = &cobra.Command{
	Use:   "import-ics [url|file]",
	Short: "Import an ICS feed into the store",
	Long: `Imports one ICS feed (http(s) URL or local file) into the store.
Without an argument every feed from the config is imported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export-ics",
	Short: "Write the timeline as an ICS calendar",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	importCmd.Flags().StringVar(&importID, "id", "import", "feed id used to prefix imported event ids")
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "window length in days (default: window_days from config)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(importCmd, exportCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sources := a.sources()
	if len(args) == 1 {
		sources = []ics.Source{{ID: importID, URL: args[0]}}
	}
	if len(sources) == 0 {
		return fmt.Errorf("no feed given and none configured in %s", cfgFile)
	}

	r := &refresh.Refresher{
		Store:    a.store,
		Fetcher:  ics.NewFetcher(a.cfg.FeedCacheDir, nil),
		Calendar: a.cal,
		Sources:  sources,
	}
	res, err := r.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d feed(s): %d events, %d overrides\n", res.Feeds, res.Events, res.Overrides)
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d feed(s) failed: %w", len(res.Errors), res.Errors[0])
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tl, err := a.timeline(cmd.Context(), exportDays)
	if err != nil {
		return err
	}
	body := ics.Export(tl, a.cal, time.Now().UTC())
	if exportOut == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}
	return os.WriteFile(exportOut, []byte(body), 0o644)
}
