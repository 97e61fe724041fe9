/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package sink

import (
    "context"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
)

// IssueRow is one exported issue in transport form. Text fields carry the
// base64 transport encoding; nil marks an absent value. Sinks decode at
// their boundary before writing.
type IssueRow struct {
    ID         int64
    Tracker    *string
    Project    *string
    Priority   *string
    Category   *string
    Status     *string
    Resolution *string
    AssignedTo *string
    Author     *string
    CreatedOn  time.Time
    DueDate    *time.Time
}

// ChangeRow is one exported change event in transport form.
type ChangeRow struct {
    ID         int64
    IssueID    int64
    Actor      *string
    OccurredOn time.Time
    Property   string
    Field      string
    OldValue   *string
    NewValue   *string
    HasNotes   bool
}

// StoredIssue is the materializer's read-back view of a committed issue row:
// the reconstructed original value per tracked field, already decoded.
type StoredIssue struct {
    ID        int64
    CreatedOn time.Time
    Fields    map[string]string
}

// Sink is the analytical store. Appends must be all-or-nothing per batch;
// every append accepts an empty batch and commits it as a no-op, so a
// zero-row stream still produces a structurally valid write.
type Sink interface {
    // MaxID derives the high-water mark for a stream from committed rows.
    // An empty stream is 0, never an error.
    MaxID(ctx context.Context, stream domain.Stream) (int64, error)

    AppendIssues(ctx context.Context, rows []IssueRow) error
    AppendChanges(ctx context.Context, rows []ChangeRow) error
    AppendSnapshots(ctx context.Context, rows []domain.SnapshotRow) error

    // LastSnapshotDay reports the latest materialized day, if any.
    LastSnapshotDay(ctx context.Context) (time.Time, bool, error)
    // EarliestIssueDay reports the earliest committed created_on day, if any.
    EarliestIssueDay(ctx context.Context) (time.Time, bool, error)

    // LoadIssues and LoadChanges feed the materializer from the sink's own
    // accumulated data.
    LoadIssues(ctx context.Context) ([]StoredIssue, error)
    LoadChanges(ctx context.Context) ([]domain.Change, error)

    Close() error
}

// Dry wraps a sink for dry runs: reads pass through, writes are counted and
// discarded.
type Dry struct {
    Sink
    Issues    int
    Changes   int
    Snapshots int
}

func (d *Dry) AppendIssues(ctx context.Context, rows []IssueRow) error {
    d.Issues += len(rows)
    return nil
}

func (d *Dry) AppendChanges(ctx context.Context, rows []ChangeRow) error {
    d.Changes += len(rows)
    return nil
}

func (d *Dry) AppendSnapshots(ctx context.Context, rows []domain.SnapshotRow) error {
    d.Snapshots += len(rows)
    return nil
}
