/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string
    LogFile  string

    SourceDSN string

    SinkKind        string // "bigquery" or "sqlite"
    BigQueryProject string
    BigQueryDataset string
    SQLitePath      string

    ProjectsInclude []string
    ProjectsExclude []string

    MaxIssues       int
    MaxChanges      int
    SnapshotDays    int
    ChangeBatchSize int

    ResolutionFieldName string
    FieldMapFile        string
    FieldMap            map[string]string // prop_key -> canonical, overrides

    RunCron     string
    HTTPTimeout time.Duration
    DryRun      bool
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func parseStrings(csv string) []string {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        out = append(out, p)
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "UTC"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),
        LogFile:  getenv("LOG_FILE", ""),

        SourceDSN: getenv("SOURCE_DSN", ""),

        SinkKind:        getenv("SINK", "bigquery"),
        BigQueryProject: getenv("BQ_PROJECT", ""),
        BigQueryDataset: getenv("BQ_DATASET", "redmine"),
        SQLitePath:      getenv("SQLITE_PATH", "redmine-export.db"),

        ProjectsInclude: parseStrings(getenv("PROJECTS", "")),
        ProjectsExclude: parseStrings(getenv("PROJECTS_EXCLUDE", "")),

        MaxIssues:       atoi("MAX_ISSUES", 10000),
        MaxChanges:      atoi("MAX_CHANGES", 30000),
        SnapshotDays:    atoi("SNAPSHOT_DAYS", 30),
        ChangeBatchSize: atoi("CHANGE_BATCH_SIZE", 300),

        ResolutionFieldName: getenv("RESOLUTION_FIELD", "Resolution"),
        FieldMapFile:        getenv("FIELD_MAP_FILE", ""),

        RunCron:     getenv("CRON_SPEC", "30 2 * * *"),
        HTTPTimeout: dur("HTTP_TIMEOUT", 15*time.Second),
    }

    if loc, err := time.LoadLocation(cfg.TZ); err == nil { time.Local = loc }

    // Optional field-alias overrides (prop_key -> canonical name)
    if cfg.FieldMapFile != "" {
        if data, err := os.ReadFile(cfg.FieldMapFile); err == nil {
            m := map[string]string{}
            if err := yaml.Unmarshal(data, &m); err == nil && len(m) > 0 { cfg.FieldMap = m }
        }
    }
    return cfg
}

// Validate reports the first missing required setting. The process must not
// start a run with an invalid configuration.
func (c Config) Validate() error {
    if strings.TrimSpace(c.SourceDSN) == "" { return fmt.Errorf("config: SOURCE_DSN is required") }
    switch c.SinkKind {
    case "bigquery":
        if strings.TrimSpace(c.BigQueryProject) == "" { return fmt.Errorf("config: BQ_PROJECT is required for the bigquery sink") }
        if strings.TrimSpace(c.BigQueryDataset) == "" { return fmt.Errorf("config: BQ_DATASET is required for the bigquery sink") }
    case "sqlite":
        if strings.TrimSpace(c.SQLitePath) == "" { return fmt.Errorf("config: SQLITE_PATH is required for the sqlite sink") }
    default:
        return fmt.Errorf("config: unknown sink %q", c.SinkKind)
    }
    if c.ChangeBatchSize <= 0 { return fmt.Errorf("config: CHANGE_BATCH_SIZE must be positive") }
    if c.SnapshotDays < 0 { return fmt.Errorf("config: SNAPSHOT_DAYS must not be negative") }
    return nil
}
