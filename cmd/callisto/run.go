package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/policy/engine"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// clock is the time source of file selection.
var clock = clockwork.NewRealClock()

var runFlags struct {
	date     string
	files    string
	pastDays int
	from     string
	days     int
	dryRun   bool
	format   string
	progress bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass over a selection of archive files",
	Long: `Run one pass of the rule table over a selection of archive files.

Without a selector every file of the archive is evaluated. Selectors:
  --date        files of one day (YYYY-MM-DD or YYYY.DDD)
  --files       files matching a wildcard over all seven SDS fields
  --past-days   files of the N-1 days before today
  --from/--days files of the days strictly between --from and --from+days
                (negative days walk backwards)

The process exits with status 1 when a rule with exitOnFailure stopped the
pass and with status 2 when the configuration or rule table is invalid.

Examples:
  # Evaluate the files of the past week
  callisto run --past-days 8

  # Show which rules would apply to one stream
  callisto run --files "NL.HGN.02.BH?.D.2024.*" --dry-run

  # Evaluate the files of 2024-02-21 to 2024-02-29
  callisto run --from 2024-02-20 --days 10`,
	RunE: runPass,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.date, "date", "", "select the files of one day")
	runCmd.Flags().StringVar(&runFlags.files, "files", "", "select files by wildcard, e.g. NL.*.*.BHZ.D.2024.*")
	runCmd.Flags().IntVar(&runFlags.pastDays, "past-days", 0, "select the files of the days before today")
	runCmd.Flags().StringVar(&runFlags.from, "from", "", "start date of a date range (exclusive)")
	runCmd.Flags().IntVar(&runFlags.days, "days", 0, "length of the date range starting at --from")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "print the plan without applying actions")
	runCmd.Flags().StringVar(&runFlags.format, "format", "text", "output format: text, json")
	runCmd.Flags().BoolVar(&runFlags.progress, "progress", false, "show a progress bar of evaluated files on stderr")

	runCmd.MarkFlagsMutuallyExclusive("date", "files", "past-days", "from")
	runCmd.MarkFlagsRequiredTogether("from", "days")
}

func runPass(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(runFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("--format", fmt.Sprintf("unsupported output format %q", runFlags.format))
	}
	filter, err := selectFiles(clock.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.loadRules()
	if err != nil {
		return err
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(Version))
	if err != nil {
		return cli.WrapConfigError("failed to initialize tracing", err)
	}
	defer shutdownTracer(tracer)

	entries, err := a.env.Archive.Collect(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to collect archive files: %w", err)
	}
	slog.Info("files selected", "count", len(entries), "archive", cfg.Archive.Root)

	opts := []engine.Option{engine.WithTracer(tracer.Tracer())}
	if runFlags.progress {
		bar := cli.NewProgressReporterWithClock(cmd.ErrOrStderr(), clock)
		bar.Start(int64(len(entries)))
		opts = append(opts, engine.WithObserver(&progressObserver{bar: bar}))
	}
	eng, err := a.newEngine(table, opts...)
	if err != nil {
		return err
	}

	var report *engine.Report
	if runFlags.dryRun {
		report, err = eng.Plan(ctx, entries)
	} else {
		report, err = eng.RunPass(ctx, entries)
	}
	if report != nil {
		if werr := writeReport(cmd.OutOrStdout(), report, format); werr != nil {
			err = errors.Join(err, werr)
		}
	}

	if errors.Is(err, engine.ErrPassAborted) {
		return cli.NewExitError(cli.ExitFatal, err)
	}
	return err
}

// progressObserver advances a progress bar as the engine finishes files.
type progressObserver struct {
	bar cli.ProgressReporter
}

func (o *progressObserver) ObserveFile(visited, total int) {
	o.bar.Update(int64(visited))
}

func (o *progressObserver) ObservePass(report *engine.Report) {
	if report.Fatal {
		o.bar.Error(fmt.Errorf("pass stopped after %d files", report.Files))
		return
	}
	o.bar.Finish()
}

// selectFiles builds the file filter from the selector flags.
func selectFiles(now time.Time) (inventory.Filter, error) {
	switch {
	case runFlags.date != "":
		day, err := parseDate(runFlags.date)
		if err != nil {
			return nil, cli.NewConfigError("--date", err.Error())
		}
		return inventory.OnDate(day), nil
	case runFlags.files != "":
		filter, err := inventory.Wildcard(runFlags.files)
		if err != nil {
			return nil, cli.NewConfigError("--files", err.Error())
		}
		return filter, nil
	case runFlags.pastDays != 0:
		if runFlags.pastDays < 0 {
			return nil, cli.NewConfigError("--past-days", "must be positive")
		}
		return inventory.PastDays(now, runFlags.pastDays), nil
	case runFlags.from != "":
		from, err := parseDate(runFlags.from)
		if err != nil {
			return nil, cli.NewConfigError("--from", err.Error())
		}
		return inventory.DateRange(from, runFlags.days), nil
	default:
		return inventory.All(), nil
	}
}

// parseDate accepts calendar dates and SDS year.day dates.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006.002"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or YYYY.DDD)", s)
}

// reportView is the JSON form of a report.
type reportView struct {
	Pass    *ledger.PassRecord `json:"pass"`
	DryRun  bool               `json:"dry_run"`
	Status  string             `json:"status"`
	Entries []ledger.Entry     `json:"entries"`
}

func writeReport(w io.Writer, report *engine.Report, format cli.OutputFormat) error {
	if format != cli.FormatJSON {
		return report.WriteText(w)
	}
	pass, entries := report.Record()
	return cli.NewFormatter(cli.FormatJSON).FormatTo(w, reportView{
		Pass:    pass,
		DryRun:  report.DryRun,
		Status:  report.Status(),
		Entries: entries,
	})
}

func shutdownTracer(tracer *tracing.Tracer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
}
