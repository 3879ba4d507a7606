package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/scrypster/caresight/internal/notify"
	"github.com/scrypster/caresight/internal/server"
	"github.com/scrypster/caresight/pkg/types"
	"github.com/scrypster/caresight/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Serve the REST API, watch for sync_complete events and optionally run post-sync on a cron schedule.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.withGenerator(ctx); err != nil {
		return err
	}

	handler := server.NewHandler(a.cfg, handlers.Deps{
		Retriever:  a.retriever,
		Summarizer: a.summarizer,
		Summaries:  a.summaries,
		Scanner:    a.scanner,
		Cache:      a.cache,
		PostSync:   a.postSync,
		Model:      a.generator,
		Version:    version,
		Logger:     a.logger,
	}, a.registry, a.logger)

	addr, err := server.Start(ctx, a.cfg, handler, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("caresight: API running", "url", fmt.Sprintf("http://%s", addr), "version", version)

	if a.cfg.Server.WatchEvents {
		watcher := notify.NewEventWatcher(a.cfg.Storage.DataPath, func(ev notify.Event) {
			if ev.Type != notify.EventSyncComplete {
				a.logger.Debug("caresight: ignoring event", "type", ev.Type)
				return
			}
			a.logger.Info("caresight: sync complete", "source", ev.Source, "records", ev.RecordCount)
			report := a.postSync.Run(ctx)
			if n := report.Failed(); n > 0 {
				a.logger.Warn("caresight: post-sync finished with failures", "failed", n)
			}
		}, a.logger)
		if err := watcher.Start(); err != nil {
			a.logger.Warn("caresight: event watcher disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if spec := a.cfg.Summary.Schedule; spec != "" {
		c := cron.New(cron.WithLocation(types.FacilityLocation))
		if _, err := c.AddFunc(spec, func() {
			report := a.postSync.Run(ctx)
			a.logger.Info("caresight: scheduled post-sync done", "runs", len(report.Runs), "failed", report.Failed())
		}); err != nil {
			return fmt.Errorf("invalid summary schedule %q: %w", spec, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		a.logger.Info("caresight: post-sync scheduled", "schedule", spec)
	}

	<-ctx.Done()
	a.logger.Info("caresight: shutting down")
	return nil
}
