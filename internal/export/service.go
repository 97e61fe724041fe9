/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package export

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/decode"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/projects"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/replay"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

// ErrRunBusy is returned when a run is requested while another is in flight.
var ErrRunBusy = errors.New("export: a run is already in progress")

// Source is the read-only view of the issue tracker the exporter needs.
type Source interface {
    ProjectDirectory(ctx context.Context) ([]projects.Project, error)
    Lookups(ctx context.Context) (decode.Lookups, error)
    ResolutionFieldID(ctx context.Context, name string) (string, error)
    FetchIssues(ctx context.Context, cursor int64, before time.Time, ps projects.Set, limit int) ([]domain.Issue, error)
    FetchRawChanges(ctx context.Context, cursor int64, before time.Time, ps projects.Set, limit int) ([]domain.RawChange, error)
    ChangesForIssues(ctx context.Context, issueIDs []int64) ([]domain.RawChange, error)
}

// Stats counts rows written by one run.
type Stats struct {
    Issues    int `json:"issues"`
    Changes   int `json:"changes"`
    Snapshots int `json:"snapshots"`
}

// RunInfo describes one completed or failed run.
type RunInfo struct {
    ID         string    `json:"id"`
    StartedAt  time.Time `json:"started_at"`
    FinishedAt time.Time `json:"finished_at"`
    Error      string    `json:"error,omitempty"`
    DryRun     bool      `json:"dry_run,omitempty"`
    Stats      Stats     `json:"stats"`
}

type Service struct {
    cfg  config.Config
    src  Source
    sink sink.Sink
    log  zerolog.Logger

    runMu  sync.Mutex // held for the duration of a run
    lastMu sync.RWMutex
    last   *RunInfo
}

func New(cfg config.Config, src Source, snk sink.Sink, log zerolog.Logger) *Service {
    return &Service{cfg: cfg, src: src, sink: snk, log: log}
}

// LastRun reports the most recent run of this process, if any.
func (s *Service) LastRun() (RunInfo, bool) {
    s.lastMu.RLock()
    defer s.lastMu.RUnlock()
    if s.last == nil { return RunInfo{}, false }
    return *s.last, true
}

func (s *Service) record(info RunInfo) {
    s.lastMu.Lock()
    s.last = &info
    s.lastMu.Unlock()
}

// Run executes one full export pass: issues, then changes, then daily
// snapshots. Runs are serialized; a second caller gets ErrRunBusy instead of
// queueing.
func (s *Service) Run(ctx context.Context) (RunInfo, error) {
    if !s.runMu.TryLock() { return RunInfo{}, ErrRunBusy }
    defer s.runMu.Unlock()

    info := RunInfo{ID: uuid.NewString(), StartedAt: time.Now().UTC(), DryRun: s.cfg.DryRun}
    log := s.log.With().Str("run_id", info.ID).Logger()
    log.Info().Bool("dry_run", info.DryRun).Msg("export run started")

    err := s.run(ctx, log, &info.Stats)
    info.FinishedAt = time.Now().UTC()
    if err != nil {
        info.Error = err.Error()
        log.Error().Err(err).Msg("export run failed")
    } else {
        log.Info().
            Int("issues", info.Stats.Issues).
            Int("changes", info.Stats.Changes).
            Int("snapshots", info.Stats.Snapshots).
            Dur("took", info.FinishedAt.Sub(info.StartedAt)).
            Msg("export run finished")
    }
    s.record(info)
    return info, err
}

func (s *Service) run(ctx context.Context, log zerolog.Logger, stats *Stats) error {
    // everything created today or later waits for the next run, so a run
    // always works against a closed day boundary
    before := replay.DayUTC(time.Now())

    dir, err := s.src.ProjectDirectory(ctx)
    if err != nil { return err }
    ps := projects.Resolve(dir, s.cfg.ProjectsInclude, s.cfg.ProjectsExclude)
    if !ps.Unfiltered() && len(ps) == 0 {
        log.Warn().Strs("include", s.cfg.ProjectsInclude).Msg("project filter matched nothing")
    }

    lookups, err := s.src.Lookups(ctx)
    if err != nil { return err }
    resolutionID, err := s.src.ResolutionFieldID(ctx, s.cfg.ResolutionFieldName)
    if err != nil { return err }
    dec := decode.New(lookups, resolutionID, s.cfg.FieldMap)

    if err := s.syncIssues(ctx, log, dec, lookups, ps, before, stats); err != nil { return err }
    if err := s.syncChanges(ctx, log, dec, ps, before, stats); err != nil { return err }
    return s.materializeSnapshots(ctx, log, stats)
}

// syncIssues exports new issues with their field values reconstructed to
// what they were at creation time.
func (s *Service) syncIssues(ctx context.Context, log zerolog.Logger, dec *decode.Decoder, lookups decode.Lookups, ps projects.Set, before time.Time, stats *Stats) error {
    cursor, err := s.sink.MaxID(ctx, domain.StreamIssues)
    if err != nil { return err }
    issues, err := s.src.FetchIssues(ctx, cursor, before, ps, s.cfg.MaxIssues)
    if err != nil { return err }

    ids := make([]int64, len(issues))
    for i, is := range issues { ids[i] = is.ID }
    raw, err := s.src.ChangesForIssues(ctx, ids)
    if err != nil { return err }
    history := map[int64][]domain.Change{}
    for _, c := range dec.DecodeAll(raw) { history[c.IssueID] = append(history[c.IssueID], c) }

    rows := make([]sink.IssueRow, 0, len(issues))
    for _, is := range issues {
        live := map[string]string{
            domain.FieldTracker:    lookups.Trackers[is.TrackerID],
            domain.FieldProject:    lookups.Projects[is.ProjectID],
            domain.FieldPriority:   lookups.Priorities[is.PriorityID],
            domain.FieldCategory:   lookups.Categories[is.CategoryID],
            domain.FieldStatus:     lookups.Statuses[is.StatusID],
            domain.FieldAssignedTo: lookups.Users[is.AssignedToID],
        }
        orig := replay.OriginalValues(live, history[is.ID])
        rows = append(rows, sink.IssueRow{
            ID:         is.ID,
            Tracker:    decode.EncodeText(orig[domain.FieldTracker]),
            Project:    decode.EncodeText(orig[domain.FieldProject]),
            Priority:   decode.EncodeText(orig[domain.FieldPriority]),
            Category:   decode.EncodeText(orig[domain.FieldCategory]),
            Status:     decode.EncodeText(orig[domain.FieldStatus]),
            Resolution: decode.EncodeText(orig[domain.FieldResolution]),
            AssignedTo: decode.EncodeText(orig[domain.FieldAssignedTo]),
            Author:     decode.EncodeText(lookups.Users[is.AuthorID]),
            CreatedOn:  is.CreatedOn,
            DueDate:    is.DueDate,
        })
    }
    if err := s.sink.AppendIssues(ctx, rows); err != nil { return err }
    stats.Issues = len(rows)
    log.Info().Int64("cursor", cursor).Int("rows", len(rows)).Msg("issues synced")
    return nil
}

// syncChanges exports change events in chunks. The cursor is re-derived from
// the sink after each committed chunk, so a crashed run resumes exactly where
// its last commit left off.
func (s *Service) syncChanges(ctx context.Context, log zerolog.Logger, dec *decode.Decoder, ps projects.Set, before time.Time, stats *Stats) error {
    cursor, err := s.sink.MaxID(ctx, domain.StreamChanges)
    if err != nil { return err }
    size := s.cfg.ChangeBatchSize
    total := 0
    for {
        limit := size
        if s.cfg.MaxChanges > 0 && s.cfg.MaxChanges-total < limit { limit = s.cfg.MaxChanges - total }
        raw, err := s.src.FetchRawChanges(ctx, cursor, before, ps, limit)
        if err != nil { return err }

        rows := make([]sink.ChangeRow, 0, len(raw))
        var lastID int64
        for _, c := range dec.DecodeAll(raw) {
            rows = append(rows, sink.ChangeRow{
                ID:         c.ID,
                IssueID:    c.IssueID,
                Actor:      decode.EncodeText(c.Actor),
                OccurredOn: c.OccurredOn,
                Property:   c.Property,
                Field:      c.Field,
                OldValue:   decode.EncodeText(c.OldValue),
                NewValue:   decode.EncodeText(c.NewValue),
                HasNotes:   c.HasNotes,
            })
            lastID = c.ID
        }
        // every fetch is committed, an empty one included
        if err := s.sink.AppendChanges(ctx, rows); err != nil { return err }
        total += len(rows)

        if len(raw) < limit { break }
        if s.cfg.MaxChanges > 0 && total >= s.cfg.MaxChanges {
            log.Info().Int("total", total).Msg("change cap reached, remainder deferred to next run")
            break
        }
        next, err := s.sink.MaxID(ctx, domain.StreamChanges)
        if err != nil { return err }
        // a sink that has not surfaced the last commit yet (dry runs,
        // streaming buffers) must not stall the walk
        if next < lastID { next = lastID }
        cursor = next
    }
    stats.Changes = total
    log.Info().Int("rows", total).Msg("changes synced")
    return nil
}

// materializeSnapshots extends the daily time series from the day after the
// last materialized one, at most SnapshotDays days, never past yesterday.
func (s *Service) materializeSnapshots(ctx context.Context, log zerolog.Logger, stats *Stats) error {
    if s.cfg.SnapshotDays == 0 { return nil }

    start, ok, err := s.sink.LastSnapshotDay(ctx)
    if err != nil { return err }
    if ok {
        start = start.AddDate(0, 0, 1)
    } else {
        start, ok, err = s.sink.EarliestIssueDay(ctx)
        if err != nil { return err }
        if !ok {
            log.Info().Msg("no issues in sink, nothing to materialize")
            return nil
        }
        start = replay.DayUTC(start)
    }
    yesterday := replay.DayUTC(time.Now()).AddDate(0, 0, -1)
    end := start.AddDate(0, 0, s.cfg.SnapshotDays-1)
    if end.After(yesterday) { end = yesterday }
    if end.Before(start) {
        log.Info().Time("start", start).Msg("snapshot series already current")
        return nil
    }

    stored, err := s.sink.LoadIssues(ctx)
    if err != nil { return err }
    changes, err := s.sink.LoadChanges(ctx)
    if err != nil { return err }
    states := make([]replay.IssueState, 0, len(stored))
    for _, si := range stored {
        states = append(states, replay.IssueState{ID: si.ID, CreatedOn: si.CreatedOn, Original: si.Fields})
    }

    rows := replay.Materialize(states, changes, start, end)
    if err := s.sink.AppendSnapshots(ctx, rows); err != nil { return err }
    stats.Snapshots = len(rows)
    log.Info().Time("start", start).Time("end", end).Int("rows", len(rows)).Msg("snapshots materialized")
    return nil
}
