/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package sqlite

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/decode"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink"
    "github.com/rs/zerolog"
    _ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    id          INTEGER PRIMARY KEY,
    tracker     TEXT,
    project     TEXT,
    priority    TEXT,
    category    TEXT,
    status      TEXT,
    resolution  TEXT,
    assigned_to TEXT,
    author      TEXT,
    created_on  TIMESTAMP NOT NULL,
    due_date    DATE
);

CREATE TABLE IF NOT EXISTS changes (
    id          INTEGER PRIMARY KEY,
    issue_id    INTEGER NOT NULL,
    actor       TEXT,
    occurred_on TIMESTAMP NOT NULL,
    property    TEXT NOT NULL,
    field       TEXT NOT NULL,
    old_value   TEXT,
    new_value   TEXT,
    has_notes   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_changes_issue ON changes(issue_id, id);

CREATE TABLE IF NOT EXISTS issues_daily (
    issue_id    INTEGER NOT NULL,
    day         DATE NOT NULL,
    tracker     TEXT NOT NULL DEFAULT '',
    project     TEXT NOT NULL DEFAULT '',
    priority    TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    assigned_to TEXT NOT NULL DEFAULT '',
    resolution  TEXT NOT NULL DEFAULT '',
    created_on  TIMESTAMP NOT NULL,
    updated_on  TIMESTAMP NOT NULL,
    PRIMARY KEY (issue_id, day)
);
`

// Sink is the local development sink, schema-compatible with the
// BigQuery tables.
type Sink struct {
    db  *sql.DB
    log zerolog.Logger
}

func Open(ctx context.Context, path string, log zerolog.Logger) (*Sink, error) {
    db, err := sql.Open("sqlite", path)
    if err != nil { return nil, fmt.Errorf("sqlite: open: %w", err) }
    if _, err := db.ExecContext(ctx, schema); err != nil {
        db.Close()
        return nil, fmt.Errorf("sqlite: schema: %w", err)
    }
    return &Sink{db: db, log: log}, nil
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) MaxID(ctx context.Context, stream domain.Stream) (int64, error) {
    table := "issues"
    if stream == domain.StreamChanges { table = "changes" }
    var id int64
    err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT IFNULL(MAX(id), 0) FROM %s`, table)).Scan(&id)
    if err != nil { return 0, fmt.Errorf("sqlite: max id for %s: %w", stream, err) }
    return id, nil
}

// text decodes a transport-encoded value; absence maps to SQL NULL.
func text(p *string) any {
    if p == nil { return nil }
    return decode.DecodeText(p)
}

func (s *Sink) AppendIssues(ctx context.Context, rows []sink.IssueRow) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil { return fmt.Errorf("sqlite: begin: %w", err) }
    defer tx.Rollback()
    for _, r := range rows {
        var due any
        if r.DueDate != nil { due = r.DueDate.UTC().Format("2006-01-02") }
        _, err := tx.ExecContext(ctx, `INSERT INTO issues
            (id, tracker, project, priority, category, status, resolution, assigned_to, author, created_on, due_date)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
            r.ID, text(r.Tracker), text(r.Project), text(r.Priority), text(r.Category),
            text(r.Status), text(r.Resolution), text(r.AssignedTo), text(r.Author),
            r.CreatedOn.UTC(), due)
        if err != nil { return fmt.Errorf("sqlite: insert issue %d: %w", r.ID, err) }
    }
    return tx.Commit()
}

func (s *Sink) AppendChanges(ctx context.Context, rows []sink.ChangeRow) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil { return fmt.Errorf("sqlite: begin: %w", err) }
    defer tx.Rollback()
    for _, r := range rows {
        _, err := tx.ExecContext(ctx, `INSERT INTO changes
            (id, issue_id, actor, occurred_on, property, field, old_value, new_value, has_notes)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
            r.ID, r.IssueID, text(r.Actor), r.OccurredOn.UTC(), r.Property, r.Field,
            text(r.OldValue), text(r.NewValue), r.HasNotes)
        if err != nil { return fmt.Errorf("sqlite: insert change %d: %w", r.ID, err) }
    }
    return tx.Commit()
}

func (s *Sink) AppendSnapshots(ctx context.Context, rows []domain.SnapshotRow) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil { return fmt.Errorf("sqlite: begin: %w", err) }
    defer tx.Rollback()
    for _, r := range rows {
        _, err := tx.ExecContext(ctx, `INSERT INTO issues_daily
            (issue_id, day, tracker, project, priority, category, status, assigned_to, resolution, created_on, updated_on)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
            r.IssueID, r.Day.Format("2006-01-02"),
            r.Fields[domain.FieldTracker], r.Fields[domain.FieldProject],
            r.Fields[domain.FieldPriority], r.Fields[domain.FieldCategory],
            r.Fields[domain.FieldStatus], r.Fields[domain.FieldAssignedTo],
            r.Fields[domain.FieldResolution], r.CreatedOn.UTC(), r.UpdatedOn.UTC())
        if err != nil { return fmt.Errorf("sqlite: insert snapshot (%d, %s): %w", r.IssueID, r.Day.Format("2006-01-02"), err) }
    }
    return tx.Commit()
}

func (s *Sink) LastSnapshotDay(ctx context.Context) (time.Time, bool, error) {
    var d sql.NullString
    err := s.db.QueryRowContext(ctx, `SELECT MAX(day) FROM issues_daily`).Scan(&d)
    if err != nil { return time.Time{}, false, fmt.Errorf("sqlite: last snapshot day: %w", err) }
    if !d.Valid { return time.Time{}, false, nil }
    t, err := time.ParseInLocation("2006-01-02", d.String, time.UTC)
    if err != nil { return time.Time{}, false, fmt.Errorf("sqlite: last snapshot day: %w", err) }
    return t, true, nil
}

func (s *Sink) EarliestIssueDay(ctx context.Context) (time.Time, bool, error) {
    // MIN() strips the column's TIMESTAMP decltype, so the driver hands the
    // stored string back instead of a time.Time; parse it ourselves.
    var d sql.NullString
    err := s.db.QueryRowContext(ctx, `SELECT MIN(created_on) FROM issues`).Scan(&d)
    if err != nil { return time.Time{}, false, fmt.Errorf("sqlite: earliest issue day: %w", err) }
    if !d.Valid { return time.Time{}, false, nil }
    t, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", d.String)
    if err != nil { return time.Time{}, false, fmt.Errorf("sqlite: earliest issue day: %w", err) }
    return t.UTC(), true, nil
}

func (s *Sink) LoadIssues(ctx context.Context) ([]sink.StoredIssue, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT id, created_on,
            IFNULL(tracker, ''), IFNULL(project, ''), IFNULL(priority, ''),
            IFNULL(category, ''), IFNULL(status, ''), IFNULL(assigned_to, ''),
            IFNULL(resolution, '')
        FROM issues ORDER BY id`)
    if err != nil { return nil, fmt.Errorf("sqlite: load issues: %w", err) }
    defer rows.Close()
    var out []sink.StoredIssue
    for rows.Next() {
        si := sink.StoredIssue{Fields: map[string]string{}}
        var tracker, project, priority, category, status, assignedTo, resolution string
        if err := rows.Scan(&si.ID, &si.CreatedOn, &tracker, &project, &priority,
            &category, &status, &assignedTo, &resolution); err != nil {
            return nil, err
        }
        si.CreatedOn = si.CreatedOn.UTC()
        si.Fields[domain.FieldTracker] = tracker
        si.Fields[domain.FieldProject] = project
        si.Fields[domain.FieldPriority] = priority
        si.Fields[domain.FieldCategory] = category
        si.Fields[domain.FieldStatus] = status
        si.Fields[domain.FieldAssignedTo] = assignedTo
        si.Fields[domain.FieldResolution] = resolution
        out = append(out, si)
    }
    return out, rows.Err()
}

func (s *Sink) LoadChanges(ctx context.Context) ([]domain.Change, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT id, issue_id, field, IFNULL(new_value, ''), occurred_on
        FROM changes ORDER BY id`)
    if err != nil { return nil, fmt.Errorf("sqlite: load changes: %w", err) }
    defer rows.Close()
    var out []domain.Change
    for rows.Next() {
        var c domain.Change
        if err := rows.Scan(&c.ID, &c.IssueID, &c.Field, &c.NewValue, &c.OccurredOn); err != nil {
            return nil, err
        }
        c.OccurredOn = c.OccurredOn.UTC()
        out = append(out, c)
    }
    return out, rows.Err()
}
