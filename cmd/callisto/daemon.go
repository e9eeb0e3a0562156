package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/cli"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger/retention"
	"mercator-hq/callisto/pkg/policy/engine"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/telemetry/health"
	"mercator-hq/callisto/pkg/telemetry/metrics"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

var daemonFlags struct {
	runOnStart bool
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run passes on the configured schedule",
	Long: `Run passes over the files of the past days on the cron schedule in
schedule.cron.

Between passes the daemon reloads the rule table when the rule files change
(or, with rules.git, when a pull of the rule repository changes them),
prunes the ledger on ledger.retention.prune_schedule and serves metrics and
health endpoints on telemetry.metrics.listen_address:

  /metrics   Prometheus metrics
  /health    liveness
  /ready     readiness (ledger, rule table, pass age)
  /version   build information

A pass stopped by an exitOnFailure rule stops the daemon with status 1.

Examples:
  # Start with the hourly default schedule
  callisto daemon --config /etc/callisto/config.yaml

  # Run a first pass immediately
  callisto daemon --run-on-start`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&daemonFlags.runOnStart, "run-on-start", false, "run a pass before the first scheduled one")
}

func runDaemon(cmd *cobra.Command, args []string) error {
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

	mgr, err := a.ruleManager()
	if err != nil {
		return cli.WrapConfigError("invalid rules configuration", err)
	}
	table, err := mgr.Load()
	if err != nil {
		return asConfigError(err)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(Version))
	if err != nil {
		return cli.WrapConfigError("failed to initialize tracing", err)
	}
	defer shutdownTracer(tracer)

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	tracker := &health.PassTracker{}

	eng, err := a.newEngine(table,
		engine.WithTracer(tracer.Tracer()),
		engine.WithObserver(collector),
		engine.WithObserver(tracker),
	)
	if err != nil {
		return err
	}
	collector.SetRules(len(eng.Rules().Rules))
	mgr.SetTarget(&observedReloader{engine: eng, collector: collector})

	pruner := retention.NewPruner(a.ledger, &retention.Config{
		RetentionDays: cfg.Ledger.Retention.Days,
		MaxPasses:     cfg.Ledger.Retention.MaxPasses,
		PruneSchedule: cfg.Ledger.Retention.PruneSchedule,
	}, nil)
	if err := pruner.Start(ctx); err != nil {
		return cli.WrapConfigError("failed to start ledger retention", err)
	}
	defer pruner.Stop()

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("ledger", health.LedgerCheck(a.ledger))
	checker.RegisterCheck("rules", health.RulesCheck(mgr.Status))
	if maxAge := cfg.Telemetry.Health.MaxPassAge; maxAge > 0 {
		checker.RegisterCheck("passes", health.PassAgeCheck(tracker, maxAge, clock.Now(), clock))
	}

	srv := newTelemetryServer(&cfg.Telemetry, collector, checker)
	serverErr := make(chan error, 1)
	if srv != nil {
		go func() {
			slog.Info("telemetry server listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("telemetry server error: %w", err)
			}
		}()
	}

	go func() {
		if err := mgr.Watch(ctx); err != nil {
			slog.Error("rule file watcher stopped", "error", err)
		}
	}()
	if syncer := a.rulesSyncer(mgr); syncer != nil {
		go func() {
			if err := syncer.Run(ctx); err != nil {
				slog.Error("rule repository polling stopped", "error", err)
			}
		}()
	}

	d := newDaemon(eng, a.env.Archive, cfg.Schedule.PastDays)
	scheduler := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{slog.Default()}))
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{slog.Default()})).Then(cron.FuncJob(func() { d.runPass(ctx) }))
	if _, err := scheduler.AddJob(cfg.Schedule.Cron, job); err != nil {
		return cli.WrapConfigError("invalid schedule", err)
	}
	scheduler.Start()
	slog.Info("daemon started",
		"schedule", cfg.Schedule.Cron,
		"past_days", cfg.Schedule.PastDays,
		"rules", len(eng.Rules().Rules),
	)
	if daemonFlags.runOnStart {
		go job.Run()
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-d.fatal:
		slog.Error("pass aborted, stopping daemon", "error", runErr)
		runErr = cli.NewExitError(cli.ExitFatal, runErr)
	case runErr = <-serverErr:
	}
	stop()

	<-scheduler.Stop().Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry server shutdown failed", "error", err)
		}
	}
	return runErr
}

// daemon runs scheduled passes.
type daemon struct {
	engine   *engine.Engine
	archive  *inventory.Archive
	pastDays int

	fatal     chan error
	fatalOnce sync.Once
}

func newDaemon(eng *engine.Engine, archive *inventory.Archive, pastDays int) *daemon {
	return &daemon{
		engine:   eng,
		archive:  archive,
		pastDays: pastDays,
		fatal:    make(chan error, 1),
	}
}

// runPass runs one pass over the files of the past days.
func (d *daemon) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	entries, err := d.archive.Collect(ctx, inventory.PastDays(clock.Now(), d.pastDays))
	if err != nil {
		slog.Error("failed to collect archive files", "error", err)
		return
	}

	report, err := d.engine.RunPass(ctx, entries)
	switch {
	case errors.Is(err, engine.ErrPassAborted):
		d.fatalOnce.Do(func() { d.fatal <- err })
	case err != nil && ctx.Err() == nil:
		slog.Error("pass failed", "error", err)
	case report != nil:
		slog.Debug("scheduled pass done", "pass_id", report.PassID, "status", report.Status())
	}
}

// observedReloader activates new rule tables on the engine and records
// the reload in metrics.
type observedReloader struct {
	engine    *engine.Engine
	collector *metrics.Collector
}

func (r *observedReloader) Reload(table *ruleset.Table) error {
	err := r.engine.Reload(table)
	r.collector.RecordReload(err)
	if err == nil {
		r.collector.SetRules(len(r.engine.Rules().Rules))
	}
	return err
}

// newTelemetryServer returns the metrics and health server, or nil when
// neither is enabled.
func newTelemetryServer(cfg *config.TelemetryConfig, collector *metrics.Collector, checker *health.Checker) *http.Server {
	if cfg.Metrics.ListenAddress == "" || (!cfg.Metrics.Enabled && !cfg.Health.Enabled) {
		return nil
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, collector.Handler())
	}
	if cfg.Health.Enabled {
		health.Mount(mux, checker, Version, GitCommit, BuildDate)
	}
	return &http.Server{
		Addr:              cfg.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// cronLogger writes cron messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
