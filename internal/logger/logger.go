package logger

import (
    "io"
    "os"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    "gopkg.in/natefinch/lumberjack.v2"
)

func New(cfg config.Config) zerolog.Logger {
    var out io.Writer = os.Stdout
    if cfg.AppEnv == "dev" {
        out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
    } else {
        zerolog.TimeFieldFormat = time.RFC3339
    }
    if cfg.LogFile != "" {
        rot := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 10, MaxBackups: 3, MaxAge: 7, Compress: true}
        out = zerolog.MultiLevelWriter(out, rot)
    }
    logger := zerolog.New(out).With().Timestamp().Logger()
    log.Logger = logger
    return logger
}
