package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"occurcal/internal/guard"
	"occurcal/internal/occurrence"
	"occurcal/internal/recurrence"
	"occurcal/internal/timeline"
)

var (
	queryDays int
	queryJSON bool
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print date-grouped occurrences from today",
	Args:  cobra.NoArgs,
	RunE:  runTimeline,
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Print every event with its schedule summary and next occurrence",
	Args:  cobra.NoArgs,
	RunE:  runSeries,
}

var nextCmd = &cobra.Command{
	Use:   "next <event-id>",
	Short: "Print the next occurrence of an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runNext,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <event-id> [date]",
	Short: "Print the occurrence a write for an event would target",
	Long: `Resolves the occurrence date a write for the event would target.
Without a date the next occurrence is used. Fails for malformed dates,
unknown events and cancelled occurrences.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runResolve,
}

func init() {
	timelineCmd.Flags().IntVar(&queryDays, "days", 0, "window length in days (default: window_days from config)")
	for _, c := range []*cobra.Command{timelineCmd, seriesCmd, nextCmd} {
		c.Flags().BoolVar(&queryJSON, "json", false, "print JSON")
	}
	rootCmd.AddCommand(timelineCmd, seriesCmd, nextCmd, resolveCmd)
}

func (a *app) timeline(ctx context.Context, days int) (timeline.Timeline, error) {
	if days <= 0 {
		days = a.cfg.WindowDays
	}
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return timeline.Timeline{}, err
	}
	overrides, err := a.store.ListOverrides(ctx)
	if err != nil {
		return timeline.Timeline{}, err
	}
	return timeline.BuildTimeline(events, overrides, timeline.Options{
		Today:    a.today,
		Window:   occurrence.WindowFor(a.today, days),
		Caps:     a.cfg.Caps,
		Calendar: a.cal,
	}), nil
}

func runTimeline(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tl, err := a.timeline(cmd.Context(), queryDays)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if queryJSON {
		return printJSON(out, tl)
	}
	writeTimeline(out, tl)
	return nil
}

func writeTimeline(out io.Writer, tl timeline.Timeline) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range tl.Groups {
		fmt.Fprintf(tw, "%s\n", g.Date)
		for _, e := range g.Entries {
			var notes []string
			if e.Rescheduled {
				notes = append(notes, "moved from "+e.OriginalDate)
			}
			if !e.IsConfident {
				notes = append(notes, "unconfirmed")
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", orDash(e.Event.StartTime), e.Event.Title, e.EventID, strings.Join(notes, ", "))
		}
	}
	tw.Flush()

	if len(tl.Cancelled) > 0 {
		fmt.Fprintln(out, "\ncancelled:")
		for _, e := range tl.Cancelled {
			fmt.Fprintf(out, "  %s  %s (%s)\n", e.DateKey, e.Event.Title, e.EventID)
		}
	}
	if len(tl.Unknown) > 0 {
		fmt.Fprintln(out, "\nnot shown:")
		for _, u := range tl.Unknown {
			fmt.Fprintf(out, "  %s (%s): %s\n", u.Title, u.EventID, u.Reason)
		}
	}
	if tl.Capped {
		fmt.Fprintf(out, "\ncapped: %d events skipped, %d occurrences skipped\n", tl.EventsSkipped, tl.OccurrencesSkipped)
	}
}

func runSeries(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return err
	}
	overrides, err := a.store.ListOverrides(ctx)
	if err != nil {
		return err
	}
	series := timeline.BuildSeries(events, overrides, timeline.SeriesOptions{
		Today:         a.today,
		Window:        occurrence.WindowFor(a.today, a.cfg.WindowDays),
		Caps:          a.cfg.Caps,
		UpcomingLimit: a.cfg.SeriesUpcoming,
		Calendar:      a.cal,
	})

	out := cmd.OutOrStdout()
	if queryJSON {
		return printJSON(out, series)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSCHEDULE\tNEXT")
	for _, s := range series {
		next := "-"
		if s.Resolvable() {
			next = s.Next.Date
			if s.NextCancelled {
				next += " (cancelled)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Event.ID, s.Event.Title, s.Summary, next)
	}
	return tw.Flush()
}

func runNext(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := a.store.GetEvent(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("event %s: %w", args[0], err)
	}
	n := recurrence.Normalize(ev.Schedule, a.cal)
	next := occurrence.Next(n, a.today)

	out := cmd.OutOrStdout()
	if queryJSON {
		return printJSON(out, next)
	}
	when := next.Date
	switch {
	case !next.IsConfident:
		when = "unknown"
	case next.IsToday:
		when += " (today)"
	case next.IsTomorrow:
		when += " (tomorrow)"
	}
	fmt.Fprintf(out, "%s: %s\nnext: %s\n", ev.Title, recurrence.Label(n), when)
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var date string
	if len(args) == 2 {
		date = args[1]
	}
	resolver := guard.Resolver{Events: a.store, Calendar: a.cal}
	key, err := resolver.Resolve(cmd.Context(), args[0], date, a.today)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
