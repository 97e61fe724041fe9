/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// Stream names the two cursored export streams.
type Stream string

const (
    StreamIssues  Stream = "issues"
    StreamChanges Stream = "changes"
)

// Canonical field names after alias mapping.
const (
    FieldTracker    = "tracker"
    FieldProject    = "project"
    FieldPriority   = "priority"
    FieldCategory   = "category"
    FieldStatus     = "status"
    FieldAssignedTo = "assigned_to"
    FieldResolution = "resolution"
)

// TrackedFields are the fields replayed into daily snapshots, in column order.
var TrackedFields = []string{
    FieldTracker, FieldProject, FieldPriority, FieldCategory,
    FieldStatus, FieldAssignedTo, FieldResolution,
}

// Issue is the live source entity. Classification values are raw lookup ids;
// labels are resolved at decode time.
type Issue struct {
    ID           int64
    TrackerID    int64
    ProjectID    int64
    PriorityID   int64
    CategoryID   int64
    StatusID     int64
    AssignedToID int64
    AuthorID     int64
    CreatedOn    time.Time
    DueDate      *time.Time
}

// RawChange is one journal detail joined with its journal, straight from the
// source. ID is the journal_details surrogate id and defines replay order.
type RawChange struct {
    ID         int64
    IssueID    int64
    ActorID    int64
    OccurredOn time.Time
    Property   string // "attr" or "cf"
    PropKey    string
    OldValue   string
    NewValue   string
    HasNotes   bool
}

// Change is a decoded field-change event. Values are human-readable labels
// (or redaction placeholders); Field is the canonical name.
type Change struct {
    ID         int64
    IssueID    int64
    Actor      string
    OccurredOn time.Time
    Property   string
    Field      string
    OldValue   string
    NewValue   string
    HasNotes   bool
}

// SnapshotRow is one issue-day in the daily time series.
type SnapshotRow struct {
    IssueID   int64
    Day       time.Time // midnight UTC
    Fields    map[string]string
    CreatedOn time.Time
    UpdatedOn time.Time
}
