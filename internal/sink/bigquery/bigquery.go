/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package bigquery

import (
    "context"
    "fmt"
    "time"

    bq "cloud.google.com/go/bigquery"
    "cloud.google.com/go/civil"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/config"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/decode"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink"
    "github.com/rs/zerolog"
    "google.golang.org/api/iterator"
)

const (
    tableIssues    = "issues"
    tableChanges   = "changes"
    tableSnapshots = "issues_daily"
)

type Sink struct {
    client  *bq.Client
    project string
    dataset string
    log     zerolog.Logger
}

func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Sink, error) {
    client, err := bq.NewClient(ctx, cfg.BigQueryProject)
    if err != nil { return nil, fmt.Errorf("bigquery: connect: %w", err) }
    return &Sink{client: client, project: cfg.BigQueryProject, dataset: cfg.BigQueryDataset, log: log}, nil
}

func (s *Sink) Close() error { return s.client.Close() }

func (s *Sink) table(name string) string {
    return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// queryValue runs a single-row single-column query.
func (s *Sink) queryValue(ctx context.Context, query string) (bq.Value, error) {
    it, err := s.client.Query(query).Read(ctx)
    if err != nil { return nil, err }
    var row []bq.Value
    if err := it.Next(&row); err != nil {
        if err == iterator.Done { return nil, nil }
        return nil, err
    }
    if len(row) == 0 { return nil, nil }
    return row[0], nil
}

func (s *Sink) MaxID(ctx context.Context, stream domain.Stream) (int64, error) {
    table := tableIssues
    if stream == domain.StreamChanges { table = tableChanges }
    v, err := s.queryValue(ctx, fmt.Sprintf("SELECT IFNULL(MAX(id), 0) FROM %s", s.table(table)))
    if err != nil { return 0, fmt.Errorf("bigquery: max id for %s: %w", stream, err) }
    if v == nil { return 0, nil }
    id, _ := v.(int64)
    return id, nil
}

type issueRecord struct {
    ID         int64         `bigquery:"id"`
    Tracker    bq.NullString `bigquery:"tracker"`
    Project    bq.NullString `bigquery:"project"`
    Priority   bq.NullString `bigquery:"priority"`
    Category   bq.NullString `bigquery:"category"`
    Status     bq.NullString `bigquery:"status"`
    Resolution bq.NullString `bigquery:"resolution"`
    AssignedTo bq.NullString `bigquery:"assigned_to"`
    Author     bq.NullString `bigquery:"author"`
    CreatedOn  time.Time     `bigquery:"created_on"`
    DueDate    bq.NullDate   `bigquery:"due_date"`
}

type changeRecord struct {
    ID         int64         `bigquery:"id"`
    IssueID    int64         `bigquery:"issue_id"`
    Actor      bq.NullString `bigquery:"actor"`
    OccurredOn time.Time     `bigquery:"occurred_on"`
    Property   string        `bigquery:"property"`
    Field      string        `bigquery:"field"`
    OldValue   bq.NullString `bigquery:"old_value"`
    NewValue   bq.NullString `bigquery:"new_value"`
    HasNotes   bool          `bigquery:"has_notes"`
}

type snapshotRecord struct {
    IssueID    int64      `bigquery:"issue_id"`
    Day        civil.Date `bigquery:"day"`
    Tracker    string     `bigquery:"tracker"`
    Project    string     `bigquery:"project"`
    Priority   string     `bigquery:"priority"`
    Category   string     `bigquery:"category"`
    Status     string     `bigquery:"status"`
    AssignedTo string     `bigquery:"assigned_to"`
    Resolution string     `bigquery:"resolution"`
    CreatedOn  time.Time  `bigquery:"created_on"`
    UpdatedOn  time.Time  `bigquery:"updated_on"`
}

// nullText decodes a transport-encoded value at the sink boundary.
func nullText(p *string) bq.NullString {
    if p == nil { return bq.NullString{} }
    return bq.NullString{StringVal: decode.DecodeText(p), Valid: true}
}

func (s *Sink) AppendIssues(ctx context.Context, rows []sink.IssueRow) error {
    if len(rows) == 0 { return nil }
    recs := make([]*issueRecord, 0, len(rows))
    for _, r := range rows {
        rec := &issueRecord{
            ID:         r.ID,
            Tracker:    nullText(r.Tracker),
            Project:    nullText(r.Project),
            Priority:   nullText(r.Priority),
            Category:   nullText(r.Category),
            Status:     nullText(r.Status),
            Resolution: nullText(r.Resolution),
            AssignedTo: nullText(r.AssignedTo),
            Author:     nullText(r.Author),
            CreatedOn:  r.CreatedOn,
        }
        if r.DueDate != nil { rec.DueDate = bq.NullDate{Date: civil.DateOf(r.DueDate.UTC()), Valid: true} }
        recs = append(recs, rec)
    }
    if err := s.client.Dataset(s.dataset).Table(tableIssues).Inserter().Put(ctx, recs); err != nil {
        return fmt.Errorf("bigquery: append issues: %w", err)
    }
    return nil
}

func (s *Sink) AppendChanges(ctx context.Context, rows []sink.ChangeRow) error {
    if len(rows) == 0 { return nil }
    recs := make([]*changeRecord, 0, len(rows))
    for _, r := range rows {
        recs = append(recs, &changeRecord{
            ID:         r.ID,
            IssueID:    r.IssueID,
            Actor:      nullText(r.Actor),
            OccurredOn: r.OccurredOn,
            Property:   r.Property,
            Field:      r.Field,
            OldValue:   nullText(r.OldValue),
            NewValue:   nullText(r.NewValue),
            HasNotes:   r.HasNotes,
        })
    }
    if err := s.client.Dataset(s.dataset).Table(tableChanges).Inserter().Put(ctx, recs); err != nil {
        return fmt.Errorf("bigquery: append changes: %w", err)
    }
    return nil
}

func (s *Sink) AppendSnapshots(ctx context.Context, rows []domain.SnapshotRow) error {
    if len(rows) == 0 { return nil }
    recs := make([]*snapshotRecord, 0, len(rows))
    for _, r := range rows {
        recs = append(recs, &snapshotRecord{
            IssueID:    r.IssueID,
            Day:        civil.DateOf(r.Day),
            Tracker:    r.Fields[domain.FieldTracker],
            Project:    r.Fields[domain.FieldProject],
            Priority:   r.Fields[domain.FieldPriority],
            Category:   r.Fields[domain.FieldCategory],
            Status:     r.Fields[domain.FieldStatus],
            AssignedTo: r.Fields[domain.FieldAssignedTo],
            Resolution: r.Fields[domain.FieldResolution],
            CreatedOn:  r.CreatedOn,
            UpdatedOn:  r.UpdatedOn,
        })
    }
    if err := s.client.Dataset(s.dataset).Table(tableSnapshots).Inserter().Put(ctx, recs); err != nil {
        return fmt.Errorf("bigquery: append snapshots: %w", err)
    }
    return nil
}

func (s *Sink) LastSnapshotDay(ctx context.Context) (time.Time, bool, error) {
    v, err := s.queryValue(ctx, fmt.Sprintf("SELECT MAX(day) FROM %s", s.table(tableSnapshots)))
    if err != nil { return time.Time{}, false, fmt.Errorf("bigquery: last snapshot day: %w", err) }
    d, ok := v.(civil.Date)
    if !ok { return time.Time{}, false, nil }
    return d.In(time.UTC), true, nil
}

func (s *Sink) EarliestIssueDay(ctx context.Context) (time.Time, bool, error) {
    v, err := s.queryValue(ctx, fmt.Sprintf("SELECT MIN(created_on) FROM %s", s.table(tableIssues)))
    if err != nil { return time.Time{}, false, fmt.Errorf("bigquery: earliest issue day: %w", err) }
    t, ok := v.(time.Time)
    if !ok { return time.Time{}, false, nil }
    return t.UTC(), true, nil
}

func (s *Sink) LoadIssues(ctx context.Context) ([]sink.StoredIssue, error) {
    q := fmt.Sprintf(`SELECT id, created_on,
            IFNULL(tracker, ''), IFNULL(project, ''), IFNULL(priority, ''),
            IFNULL(category, ''), IFNULL(status, ''), IFNULL(assigned_to, ''),
            IFNULL(resolution, '')
        FROM %s ORDER BY id`, s.table(tableIssues))
    it, err := s.client.Query(q).Read(ctx)
    if err != nil { return nil, fmt.Errorf("bigquery: load issues: %w", err) }
    var out []sink.StoredIssue
    for {
        var row []bq.Value
        err := it.Next(&row)
        if err == iterator.Done { break }
        if err != nil { return nil, err }
        si := sink.StoredIssue{Fields: map[string]string{}}
        si.ID, _ = row[0].(int64)
        if t, ok := row[1].(time.Time); ok { si.CreatedOn = t.UTC() }
        for i, f := range []string{
            domain.FieldTracker, domain.FieldProject, domain.FieldPriority,
            domain.FieldCategory, domain.FieldStatus, domain.FieldAssignedTo,
            domain.FieldResolution,
        } {
            v, _ := row[2+i].(string)
            si.Fields[f] = v
        }
        out = append(out, si)
    }
    return out, nil
}

func (s *Sink) LoadChanges(ctx context.Context) ([]domain.Change, error) {
    q := fmt.Sprintf(`SELECT id, issue_id, field, IFNULL(new_value, ''), occurred_on
        FROM %s ORDER BY id`, s.table(tableChanges))
    it, err := s.client.Query(q).Read(ctx)
    if err != nil { return nil, fmt.Errorf("bigquery: load changes: %w", err) }
    var out []domain.Change
    for {
        var row []bq.Value
        err := it.Next(&row)
        if err == iterator.Done { break }
        if err != nil { return nil, err }
        var c domain.Change
        c.ID, _ = row[0].(int64)
        c.IssueID, _ = row[1].(int64)
        c.Field, _ = row[2].(string)
        c.NewValue, _ = row[3].(string)
        if t, ok := row[4].(time.Time); ok { c.OccurredOn = t.UTC() }
        out = append(out, c)
    }
    return out, nil
}
