/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/export"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc *export.Service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc *export.Service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    info, ok := h.svc.LastRun()
    if !ok {
        c.JSON(http.StatusOK, gin.H{"status": "never ran"})
        return
    }
    c.JSON(http.StatusOK, info)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func() {
        if _, err := h.svc.Run(context.Background()); err != nil && !errors.Is(err, export.ErrRunBusy) {
            h.log.Error().Err(err).Msg("on-demand run failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
