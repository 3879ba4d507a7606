package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/caresight/internal/config"
	"github.com/scrypster/caresight/internal/engine"
	"github.com/scrypster/caresight/internal/notify"
	"github.com/scrypster/caresight/pkg/types"
)

var (
	retrieveCategory string
	retrieveYear     int
	retrieveMonth    int

	summarizeType  string
	summarizeKey   string
	summarizeForce bool

	correlateFrom string
	correlateTo   string

	notifySource string
	notifyCount  int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve records relevant to a natural-language query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rctx := engine.RetrievalContext{Year: retrieveYear, Month: retrieveMonth}
		if retrieveCategory != "" {
			cat, ok := types.ParseCategory(retrieveCategory)
			if !ok {
				return fmt.Errorf("unknown category %q", retrieveCategory)
			}
			rctx.Category = cat
		}

		res, err := a.retriever.Retrieve(cmd.Context(), strings.Join(args, " "), rctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate (or fetch) the summary for one period",
	Example: `  caresight summarize --type daily --key 2025-06-01
  caresight summarize --type weekly --key 2025-W23 --force
  caresight summarize --type monthly --key 2025-06`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.withGenerator(cmd.Context()); err != nil {
			return err
		}

		periodType := types.PeriodType(summarizeType)
		key := summarizeKey
		if key == "" {
			if key, err = engine.PeriodKey(periodType, a.store.Today()); err != nil {
				return err
			}
		}
		res, err := a.summarizer.Generate(cmd.Context(), periodType, key, summarizeForce)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var postSyncCmd = &cobra.Command{
	Use:   "post-sync",
	Short: "Invalidate the record cache and regenerate due summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.withGenerator(cmd.Context()); err != nil {
			return err
		}

		report := a.postSync.Run(cmd.Context())
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d of %d summary runs failed", n, len(report.Runs))
		}
		return nil
	},
}

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Run correlation detection and threshold scans over a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		to := a.store.Today()
		if correlateTo != "" {
			if to, err = time.ParseInLocation(types.DateLayout, correlateTo, types.FacilityLocation); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
		}
		from := to.AddDate(0, 0, -29)
		if correlateFrom != "" {
			if from, err = time.ParseInLocation(types.DateLayout, correlateFrom, types.FacilityLocation); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
		}

		report, records, err := a.scanner.Scan(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			From        string                    `json:"from"`
			To          string                    `json:"to"`
			RecordCount int                       `json:"record_count"`
			Report      *engine.CorrelationReport `json:"report"`
		}{engine.DailyKey(from), engine.DailyKey(to), len(records), report})
	},
}

var notifySyncCmd = &cobra.Command{
	Use:   "notify-sync",
	Short: "Signal a running server that a record sync has completed",
	Long:  "Drops a sync_complete event file into {data}/events for the server's watcher. Intended for the ingestion job.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		w := notify.NewEventWriter(cfg.Storage.DataPath)
		if err := w.Notify(notify.EventSyncComplete, notifySource, notifyCount); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync_complete event written to %s\n", w.Dir())
		return nil
	},
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveCategory, "category", "", "Explicit category (e.g. meal or 食事)")
	retrieveCmd.Flags().IntVar(&retrieveYear, "year", 0, "Restrict to a year")
	retrieveCmd.Flags().IntVar(&retrieveMonth, "month", 0, "Restrict to a month (requires --year)")

	summarizeCmd.Flags().StringVar(&summarizeType, "type", string(types.PeriodDaily), "Period type: daily, weekly, monthly")
	summarizeCmd.Flags().StringVar(&summarizeKey, "key", "", "Period key (default: the current period)")
	summarizeCmd.Flags().BoolVar(&summarizeForce, "force", false, "Regenerate even if a summary exists")

	correlateCmd.Flags().StringVar(&correlateFrom, "from", "", "Start date YYYY-MM-DD (default: 30 days before --to)")
	correlateCmd.Flags().StringVar(&correlateTo, "to", "", "End date YYYY-MM-DD (default: today)")

	notifySyncCmd.Flags().StringVar(&notifySource, "source", "sheets", "Name of the ingestion source")
	notifySyncCmd.Flags().IntVar(&notifyCount, "records", 0, "Number of records synced")

	rootCmd.AddCommand(retrieveCmd, summarizeCmd, postSyncCmd, correlateCmd, notifySyncCmd)
}
