/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "errors"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/export"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type runner interface{ Run(ctx context.Context) (export.RunInfo, error) }

type Cron struct {
    cfg config.Config
    log zerolog.Logger
    svc runner
    c   *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc runner) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c}
    _, _ = c.AddFunc(cfg.RunCron, cr.export)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) export() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
    defer cancel()
    cr.log.Info().Msg("cron: export run")
    if _, err := cr.svc.Run(ctx); err != nil {
        if errors.Is(err, export.ErrRunBusy) {
            cr.log.Info().Msg("cron: previous run still in progress")
            return
        }
        cr.log.Error().Err(err).Msg("cron: export failed")
    }
}
