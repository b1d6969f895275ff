package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"occurcal/internal/ics"
	appLog "occurcal/internal/log"
	"occurcal/internal/refresh"
	"occurcal/internal/web"
)

var (
	serveListen    string
	serveNoRefresh bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and refresh feeds on the configured schedule",
	Long: `Starts the HTTP API on the configured listen address.

The refresh job (cron spec "refresh" in the config) reloads the store,
imports the configured feeds and purges expired cached responses.
SIGINT/SIGTERM shut the server down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().BoolVar(&serveNoRefresh, "no-refresh", false, "do not import feeds at startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	appLog.Info("occurcal starting", "version", Version)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if serveListen != "" {
		a.cfg.Listen = serveListen
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := web.NewServer(a.cfg, a.store, a.cal, web.NewCache(a.cfg.Cache))

	r := &refresh.Refresher{
		Store:    a.store,
		Fetcher:  ics.NewFetcher(a.cfg.FeedCacheDir, nil),
		Calendar: a.cal,
		Sources:  a.sources(),
		OnChange: srv.ClearCache,
	}
	if !serveNoRefresh {
		if _, err := r.Run(ctx); err != nil {
			appLog.Error("initial refresh failed", err)
		}
	}

	c := refresh.NewCron(a.cal)
	purge := func() {
		if n := srv.PurgeCache(); n > 0 {
			appLog.Debug("response cache purged", "entries", n)
		}
	}
	if _, err := refresh.Schedule(ctx, c, a.cfg.RefreshCron, r, purge); err != nil {
		return err
	}
	c.Start()
	appLog.Info("refresh scheduled", "spec", a.cfg.RefreshCron, "feeds", len(r.Sources))

	err = srv.Serve(ctx)

	// Wait for a running refresh before the store is closed.
	<-c.Stop().Done()
	appLog.Info("occurcal exiting")
	return err
}
