/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/export"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/http"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/jobs"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/logger"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink"
    bqsink "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink/bigquery"
    sqlsink "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink/sqlite"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/source"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"
)

type flags struct {
    projects        []string
    excludeProjects []string
    maxIssues       int
    maxChanges      int
    snapshotDays    int
    batchSize       int
    sinkKind        string
    dryRun          bool
}

func (f flags) apply(cfg *config.Config, cmd *cobra.Command) {
    set := cmd.Flags().Changed
    if set("projects") { cfg.ProjectsInclude = f.projects }
    if set("exclude-projects") { cfg.ProjectsExclude = f.excludeProjects }
    if set("max-issues") { cfg.MaxIssues = f.maxIssues }
    if set("max-changes") { cfg.MaxChanges = f.maxChanges }
    if set("days") { cfg.SnapshotDays = f.snapshotDays }
    if set("batch-size") { cfg.ChangeBatchSize = f.batchSize }
    if set("sink") { cfg.SinkKind = f.sinkKind }
    if set("dry-run") { cfg.DryRun = f.dryRun }
}

func openSink(ctx context.Context, cfg config.Config, log zerolog.Logger) (sink.Sink, error) {
    var (
        s   sink.Sink
        err error
    )
    switch cfg.SinkKind {
    case "bigquery":
        s, err = bqsink.Open(ctx, cfg, log)
    case "sqlite":
        s, err = sqlsink.Open(ctx, cfg.SQLitePath, log)
    default:
        err = fmt.Errorf("unknown sink %q", cfg.SinkKind)
    }
    if err != nil { return nil, err }
    if cfg.DryRun { return &sink.Dry{Sink: s}, nil }
    return s, nil
}

func buildService(ctx context.Context, cfg config.Config, log zerolog.Logger) (*export.Service, func(), error) {
    db := source.MustOpen(ctx, cfg, log)
    snk, err := openSink(ctx, cfg, log)
    if err != nil {
        db.Close()
        return nil, nil, err
    }
    repo := source.NewRepo(db, log)
    svc := export.New(cfg, repo, snk, log)
    cleanup := func() {
        if err := snk.Close(); err != nil { log.Error().Err(err).Msg("sink close failed") }
        db.Close()
    }
    return svc, cleanup, nil
}

func runOnce(cfg config.Config, log zerolog.Logger) error {
    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer cancel()
    svc, cleanup, err := buildService(ctx, cfg, log)
    if err != nil { return err }
    defer cleanup()
    _, err = svc.Run(ctx)
    return err
}

func serve(cfg config.Config, log zerolog.Logger) error {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    svc, cleanup, err := buildService(ctx, cfg, log)
    if err != nil { return err }
    defer cleanup()

    cr := jobs.NewCron(cfg, log, svc)
    cr.Start()
    defer cr.Stop()

    router := http.NewRouter(cfg, log, svc)
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Str("cron", cfg.RunCron).Msg("serving")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
    return nil
}

func main() {
    var f flags

    root := &cobra.Command{
        Use:           "redmine2bigquery",
        Short:         "Incremental Redmine to BigQuery exporter",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.PersistentFlags().StringSliceVar(&f.projects, "projects", nil, "project names to export (default: all)")
    root.PersistentFlags().StringSliceVar(&f.excludeProjects, "exclude-projects", nil, "project names to skip, including their subtrees")
    root.PersistentFlags().IntVar(&f.maxIssues, "max-issues", 0, "issue cap per run")
    root.PersistentFlags().IntVar(&f.maxChanges, "max-changes", 0, "change cap per run")
    root.PersistentFlags().IntVar(&f.snapshotDays, "days", 0, "daily snapshot days per run")
    root.PersistentFlags().IntVar(&f.batchSize, "batch-size", 0, "change chunk size")
    root.PersistentFlags().StringVar(&f.sinkKind, "sink", "", "sink backend: bigquery or sqlite")
    root.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "read from the source but discard all writes")

    load := func(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
        cfg := config.Load()
        f.apply(&cfg, cmd)
        log := logger.New(cfg)
        if err := cfg.Validate(); err != nil { return cfg, log, err }
        return cfg, log, nil
    }

    root.AddCommand(&cobra.Command{
        Use:   "run",
        Short: "Execute one export pass and exit",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, log, err := load(cmd)
            if err != nil { return err }
            return runOnce(cfg, log)
        },
    })
    root.AddCommand(&cobra.Command{
        Use:   "serve",
        Short: "Run on a cron schedule with an admin HTTP endpoint",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, log, err := load(cmd)
            if err != nil { return err }
            return serve(cfg, log)
        },
    })

    if err := root.Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}
